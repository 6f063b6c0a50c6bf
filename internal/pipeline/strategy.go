package pipeline

import "finextract/internal/domain"

// Default page-count thresholds.
const (
	DefaultSmallMaxPages = 10
	DefaultLargeMaxPages = 100
)

// Thresholds are the page-count boundaries between strategies.
type Thresholds struct {
	SmallMaxPages int
	LargeMaxPages int
}

// SelectStrategy picks the processing path for a document of the given page
// count. Both boundaries are inclusive.
func SelectStrategy(pages int, t Thresholds) domain.ExtractionStrategy {
	if t.SmallMaxPages <= 0 {
		t.SmallMaxPages = DefaultSmallMaxPages
	}
	if t.LargeMaxPages <= 0 {
		t.LargeMaxPages = DefaultLargeMaxPages
	}
	switch {
	case pages <= t.SmallMaxPages:
		return domain.StrategySmall
	case pages <= t.LargeMaxPages:
		return domain.StrategyLargeAsync
	default:
		return domain.StrategyHugeBatched
	}
}
