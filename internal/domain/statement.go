package domain

import (
	"encoding/json"
	"sort"
)

// StatementType names one of the period-keyed statements in a Fragment.
type StatementType string

const (
	StatementIncome   StatementType = "income_statement"
	StatementBalance  StatementType = "balance_sheet"
	StatementCashflow StatementType = "cashflow"
	StatementMetrics  StatementType = "key_metrics"
)

// PeriodStatements lists the period-keyed statement types in output order.
var PeriodStatements = []StatementType{StatementIncome, StatementBalance, StatementCashflow}

// PeriodValues maps a period key (ISO date, e.g. "2024-12-31") to field values.
type PeriodValues map[string]map[string]float64

// Fragment is the financial-statement structure produced by one page or one
// text chunk. The merged, document-level statement has the same shape.
type Fragment struct {
	IncomeStatement PeriodValues       `json:"income_statement"`
	BalanceSheet    PeriodValues       `json:"balance_sheet"`
	Cashflow        PeriodValues       `json:"cashflow"`
	KeyMetrics      map[string]float64 `json:"key_metrics"`
}

// MergedFinancialStatement is the pipeline's final output.
type MergedFinancialStatement = Fragment

// NewFragment returns a fragment with all four statements present and empty.
func NewFragment() Fragment {
	return Fragment{
		IncomeStatement: PeriodValues{},
		BalanceSheet:    PeriodValues{},
		Cashflow:        PeriodValues{},
		KeyMetrics:      map[string]float64{},
	}
}

// Normalize replaces nil maps with empty ones.
func (f *Fragment) Normalize() {
	if f.IncomeStatement == nil {
		f.IncomeStatement = PeriodValues{}
	}
	if f.BalanceSheet == nil {
		f.BalanceSheet = PeriodValues{}
	}
	if f.Cashflow == nil {
		f.Cashflow = PeriodValues{}
	}
	if f.KeyMetrics == nil {
		f.KeyMetrics = map[string]float64{}
	}
}

// Statement returns the period-keyed statement for t, or nil for key metrics
// and unknown types.
func (f *Fragment) Statement(t StatementType) PeriodValues {
	switch t {
	case StatementIncome:
		return f.IncomeStatement
	case StatementBalance:
		return f.BalanceSheet
	case StatementCashflow:
		return f.Cashflow
	default:
		return nil
	}
}

// FieldCount returns the number of leaf values across all statements.
func (f Fragment) FieldCount() int {
	n := len(f.KeyMetrics)
	for _, st := range []PeriodValues{f.IncomeStatement, f.BalanceSheet, f.Cashflow} {
		for _, fields := range st {
			n += len(fields)
		}
	}
	return n
}

// IsEmpty reports whether the fragment carries no values at all.
func (f Fragment) IsEmpty() bool {
	return f.FieldCount() == 0
}

// Periods returns every period key present in any statement, sorted descending
// (most recent first).
func (f Fragment) Periods() []string {
	seen := map[string]struct{}{}
	for _, st := range []PeriodValues{f.IncomeStatement, f.BalanceSheet, f.Cashflow} {
		for period := range st {
			seen[period] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// MarshalJSON always emits the four top-level keys, rendering nil maps as {}.
func (f Fragment) MarshalJSON() ([]byte, error) {
	f.Normalize()
	type alias Fragment
	return json.Marshal(alias(f))
}

// UnmarshalJSON decodes a fragment and normalizes missing statements to empty maps.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	type alias Fragment
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Fragment(a)
	f.Normalize()
	return nil
}

// RawFragment is the decoding target for model output. Leaf values are
// pointers so an explicit null can be told apart from zero.
type RawFragment struct {
	IncomeStatement map[string]map[string]*float64 `json:"income_statement"`
	BalanceSheet    map[string]map[string]*float64 `json:"balance_sheet"`
	Cashflow        map[string]map[string]*float64 `json:"cashflow"`
	KeyMetrics      map[string]*float64            `json:"key_metrics"`
}

// Fragment converts the raw model output, dropping null values.
func (r RawFragment) Fragment() Fragment {
	out := NewFragment()
	copyPeriods(out.IncomeStatement, r.IncomeStatement)
	copyPeriods(out.BalanceSheet, r.BalanceSheet)
	copyPeriods(out.Cashflow, r.Cashflow)
	for field, v := range r.KeyMetrics {
		if v != nil {
			out.KeyMetrics[field] = *v
		}
	}
	return out
}

func copyPeriods(dst PeriodValues, src map[string]map[string]*float64) {
	for period, fields := range src {
		for field, v := range fields {
			if v == nil {
				continue
			}
			if dst[period] == nil {
				dst[period] = map[string]float64{}
			}
			dst[period][field] = *v
		}
	}
}
