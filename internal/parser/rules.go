package parser

import (
	"regexp"
	"strings"

	"finextract/internal/domain"
)

var (
	numberTokenRe = regexp.MustCompile(`\(?-?[$€£]?\s?\d[\d,]*(?:\.\d+)?\)?%?`)
	headerDateRe  = regexp.MustCompile(`(?i)(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+)?(?:FY\s?)?((?:19|20)\d{2})\b`)
	onlyYearRe    = regexp.MustCompile(`^(?:19|20)\d{2}$`)
)

// RuleExtractor reads statement lines ("Total revenue  1,234  1,100") from
// plain text without a model. Column periods come from the nearest header
// line above that lists years or dates.
type RuleExtractor struct {
	labels map[string]ruleTarget
}

type ruleTarget struct {
	statement domain.StatementType
	field     string
}

// NewRuleExtractor builds an extractor from the catalog's names and synonyms.
func NewRuleExtractor(c *Catalog) *RuleExtractor {
	r := &RuleExtractor{labels: map[string]ruleTarget{}}
	for _, st := range []domain.StatementType{domain.StatementIncome, domain.StatementBalance, domain.StatementCashflow, domain.StatementMetrics} {
		for _, f := range c.Fields(st) {
			for _, label := range append([]string{f.Name}, f.Synonyms...) {
				key := normalizeLabel(label)
				if _, dup := r.labels[key]; !dup {
					r.labels[key] = ruleTarget{statement: st, field: f.Name}
				}
			}
		}
	}
	return r
}

// Extract returns whatever statement lines it recognizes. The first value
// found for a field wins; later pages rarely restate the primary table.
func (r *RuleExtractor) Extract(text string) domain.Fragment {
	out := domain.NewFragment()
	var periods []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hdr := headerPeriods(line); len(hdr) > 0 {
			periods = hdr
			continue
		}

		label, values := splitStatementLine(line)
		if label == "" || len(values) == 0 {
			continue
		}
		target, ok := r.labels[normalizeLabel(label)]
		if !ok {
			continue
		}

		if target.statement == domain.StatementMetrics {
			if _, seen := out.KeyMetrics[target.field]; !seen {
				out.KeyMetrics[target.field] = values[0]
			}
			continue
		}
		if len(periods) == 0 {
			continue
		}
		st := out.Statement(target.statement)
		for i, v := range values {
			if i >= len(periods) {
				break
			}
			if st[periods[i]] == nil {
				st[periods[i]] = map[string]float64{}
			}
			if _, seen := st[periods[i]][target.field]; !seen {
				st[periods[i]][target.field] = v
			}
		}
	}
	return out
}

// headerPeriods returns the periods of a column header line: a line whose
// numeric content is only years (optionally with month and day).
func headerPeriods(line string) []string {
	years := 0
	for _, tok := range numberTokenRe.FindAllString(line, -1) {
		t := strings.Trim(tok, "() ,")
		switch {
		case onlyYearRe.MatchString(t):
			years++
		case len(t) <= 2:
			// day of month
		default:
			return nil
		}
	}
	if years == 0 {
		return nil
	}
	matches := headerDateRe.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	periods := make([]string, 0, len(matches))
	for _, m := range matches {
		p := NormalizePeriod(strings.TrimSpace(strings.TrimSuffix(m[0], ",")))
		if !isoDateRe.MatchString(p) {
			p = m[1] + "-12-31"
		}
		periods = append(periods, p)
	}
	return periods
}

// splitStatementLine separates a leading label from the trailing figures.
func splitStatementLine(line string) (string, []float64) {
	locs := numberTokenRe.FindAllStringIndex(line, -1)
	if len(locs) == 0 {
		return "", nil
	}
	// Figures are the run of numeric tokens at the end of the line.
	labelEnd := locs[0][0]
	var values []float64
	for i, loc := range locs {
		if i > 0 && strings.TrimSpace(line[locs[i-1][1]:loc[0]]) != "" {
			// Text between numbers: what came before belongs to the label.
			labelEnd = loc[0]
			values = values[:0]
		}
		if v, ok := ParseNumber(line[loc[0]:loc[1]]); ok {
			values = append(values, v)
		}
	}
	if strings.TrimSpace(line[locs[len(locs)-1][1]:]) != "" {
		return "", nil
	}
	return strings.TrimSpace(line[:labelEnd]), values
}

func normalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '&':
			return r
		case r == ' ', r == '-', r == '/', r == '\t':
			return ' '
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
