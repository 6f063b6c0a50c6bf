package parser

import (
	"sort"
	"strings"
)

// ElisionMarker separates non-adjacent windows kept by SmartTruncate.
const ElisionMarker = "\n...\n[content omitted]\n...\n"

// SmartTruncate shortens text to at most budget characters (runes) by
// keeping the fixed-size windows that mention the most keywords. Kept windows
// are reassembled in their original order with ElisionMarker wherever
// windows were dropped between them. Text within budget is returned as is.
func SmartTruncate(text string, budget, window int, keywords []string) string {
	runes := []rune(text)
	if budget <= 0 || len(runes) <= budget {
		return text
	}
	if window <= 0 || window > budget {
		window = budget
	}

	var windows []string
	for start := 0; start < len(runes); start += window {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
	}

	scores := make([]int, len(windows))
	for i, w := range windows {
		scores[i] = KeywordScore(w, keywords)
	}
	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	markerLen := len([]rune(ElisionMarker))
	keep := make([]bool, len(windows))
	used := 0
	for _, idx := range order {
		cost := len([]rune(windows[idx]))
		if used > 0 {
			cost += markerLen
		}
		if used+cost > budget {
			continue
		}
		keep[idx] = true
		used += cost
	}

	var sb strings.Builder
	last := -1
	for i, w := range windows {
		if !keep[i] {
			continue
		}
		if last >= 0 && i != last+1 {
			sb.WriteString(ElisionMarker)
		}
		sb.WriteString(w)
		last = i
	}
	return sb.String()
}

// KeywordScore counts case-insensitive keyword occurrences in s.
func KeywordScore(s string, keywords []string) int {
	lower := strings.ToLower(s)
	n := 0
	for _, kw := range keywords {
		n += strings.Count(lower, kw)
	}
	return n
}

// KeywordHits reports which keywords occur in s, with counts.
func KeywordHits(s string, keywords []string) map[string]int {
	lower := strings.ToLower(s)
	hits := map[string]int{}
	for _, kw := range keywords {
		if c := strings.Count(lower, kw); c > 0 {
			hits[kw] = c
		}
	}
	return hits
}
