package textextract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phuslu/log"

	"finextract/internal/domain"
	"finextract/internal/port"
)

// DefaultMinTextChars is the trimmed text length a backend must exceed for its
// output to count as usable.
const DefaultMinTextChars = 100

// Chain tries text backends in order and returns the first usable result.
// It implements port.TextBackend.
type Chain struct {
	backends     []port.TextBackend
	minTextChars int
}

// NewChain creates a Chain over backends in preference order.
func NewChain(minTextChars int, backends ...port.TextBackend) *Chain {
	if minTextChars <= 0 {
		minTextChars = DefaultMinTextChars
	}
	return &Chain{backends: backends, minTextChars: minTextChars}
}

func (c *Chain) Name() string { return "chain" }

// Usable reports whether res carries enough text to be worth structuring.
func (c *Chain) Usable(res *domain.TextExtraction) bool {
	return res != nil && len(strings.TrimSpace(res.Text)) > c.minTextChars
}

// Extract runs the backends in order. It fails with an ExtractionError only
// once every backend has been tried.
func (c *Chain) Extract(ctx context.Context, doc []byte) (*domain.TextExtraction, error) {
	var errs []error
	var warnings []string

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := b.Extract(ctx, doc)
		if err != nil {
			var avail *domain.AvailabilityError
			if errors.As(err, &avail) {
				log.Debug().Str("backend", b.Name()).Str("reason", avail.Reason).Msg("textextract.Chain: backend unavailable, skipping")
				errs = append(errs, avail)
				continue
			}
			log.Warn().Str("backend", b.Name()).Err(err).Msg("textextract.Chain: backend failed")
			errs = append(errs, &domain.ExtractionError{Backend: b.Name(), Err: err})
			continue
		}

		warnings = append(warnings, res.Warnings...)
		if !c.Usable(res) {
			n := len(strings.TrimSpace(res.Text))
			log.Info().Str("backend", b.Name()).Int("chars", n).Msg("textextract.Chain: insufficient text, trying next backend")
			errs = append(errs, &domain.ExtractionError{
				Backend: b.Name(),
				Err:     fmt.Errorf("insufficient text (%d chars, need more than %d)", n, c.minTextChars),
			})
			continue
		}

		if res.Backend == "" {
			res.Backend = b.Name()
		}
		res.Warnings = warnings
		log.Info().Str("backend", res.Backend).Int("chars", len(res.Text)).Int("tables", len(res.Tables)).Msg("textextract.Chain: extracted")
		return res, nil
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no backends configured"))
	}
	return nil, &domain.ExtractionError{Backend: "chain", Err: errors.Join(errs...)}
}
