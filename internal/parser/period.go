package parser

import (
	"regexp"
	"strings"
	"time"
)

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearRe    = regexp.MustCompile(`^(?:FY\s?)?((?:19|20)\d{2})$`)
)

var periodLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Jan 2006",
	"January 2006",
}

// NormalizePeriod converts a period label to an ISO date. Bare years ("2024",
// "FY2024") map to December 31. Labels that are not dates are returned
// unchanged so they still merge with identical labels.
func NormalizePeriod(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || isoDateRe.MatchString(p) {
		return p
	}
	if m := yearRe.FindStringSubmatch(strings.ToUpper(p)); m != nil {
		return m[1] + "-12-31"
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, p); err == nil {
			if !strings.Contains(layout, "2,") && !strings.Contains(layout, "02") && !strings.HasPrefix(layout, "2 ") {
				// Month-only labels mean the month end.
				t = t.AddDate(0, 1, -1)
			}
			return t.Format("2006-01-02")
		}
	}
	return p
}
