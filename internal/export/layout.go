// Package export renders merged statements as spreadsheets.
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"finextract/internal/domain"
	"finextract/internal/parser"
)

var sheetTitles = map[domain.StatementType]string{
	domain.StatementIncome:   "Income Statement",
	domain.StatementBalance:  "Balance Sheet",
	domain.StatementCashflow: "Cash Flow",
	domain.StatementMetrics:  "Key Metrics",
}

// fieldOrder lists a statement's fields in catalog order, followed by any
// fields the catalog does not know, alphabetically.
func fieldOrder(st domain.StatementType, present map[string]struct{}) []string {
	var out []string
	for _, f := range parser.DefaultCatalog().Fields(st) {
		if _, ok := present[f.Name]; ok {
			out = append(out, f.Name)
			delete(present, f.Name)
		}
	}
	var rest []string
	for name := range present {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// statementGrid lays out one period statement as a header row (Field, then
// periods newest first) and one row per field. Missing cells are nil.
func statementGrid(pv domain.PeriodValues, st domain.StatementType) ([]string, [][]any) {
	periods := make([]string, 0, len(pv))
	present := map[string]struct{}{}
	for period, fields := range pv {
		periods = append(periods, period)
		for name := range fields {
			present[name] = struct{}{}
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(periods)))

	header := append([]string{"Field"}, periods...)
	var rows [][]any
	for _, name := range fieldOrder(st, present) {
		row := make([]any, 0, len(header))
		row = append(row, name)
		for _, period := range periods {
			if v, ok := pv[period][name]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}

func metricsGrid(metrics map[string]float64) ([]string, [][]any) {
	present := map[string]struct{}{}
	for name := range metrics {
		present[name] = struct{}{}
	}
	var rows [][]any
	for _, name := range fieldOrder(domain.StatementMetrics, present) {
		rows = append(rows, []any{name, metrics[name]})
	}
	return []string{"Metric", "Value"}, rows
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "statements"
	}
	return s
}

// BuildFilename returns {subject}_statements_{YYYY-MM-DD}.{ext}.
func BuildFilename(subject, ext string, now time.Time) string {
	return fmt.Sprintf("%s_statements_%s.%s", SanitizeFilename(subject), now.Format("2006-01-02"), ext)
}
