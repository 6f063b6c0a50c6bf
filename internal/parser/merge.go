package parser

import (
	"math"

	"finextract/internal/domain"
)

// Provenance outcomes recorded by MergeWithProvenance.
const (
	ProvenanceSet       = "set"
	ProvenanceZero      = "replaced_zero"
	ProvenanceMagnitude = "larger_magnitude"
)

// FieldSource identifies which input fragment supplied a merged value.
type FieldSource struct {
	Fragment int    // index into the merged fragments
	Reason   string // ProvenanceSet, ProvenanceZero or ProvenanceMagnitude
}

// Provenance maps "statement/period/field" (or "key_metrics/field") to the
// fragment whose value survived the merge.
type Provenance map[string]FieldSource

// Merge combines fragments in order into one statement. For every field the
// first value seen is kept unless a later one is non-zero where the current
// value is zero, or has a strictly larger magnitude.
//
// Magnitude is a heuristic for completeness. It cannot tell a fuller figure
// from an unrelated larger one (a subtotal against a total, a comparative
// column read as the current period), so those cases merge wrongly.
func Merge(fragments ...domain.Fragment) domain.Fragment {
	merged, _ := MergeWithProvenance(fragments...)
	return merged
}

// MergeWithProvenance is Merge that also reports where each value came from.
func MergeWithProvenance(fragments ...domain.Fragment) (domain.Fragment, Provenance) {
	out := domain.NewFragment()
	prov := Provenance{}

	for i, f := range fragments {
		for _, st := range domain.PeriodStatements {
			mergePeriods(out.Statement(st), f.Statement(st), string(st), i, prov)
		}
		for field, v := range f.KeyMetrics {
			mergeValue(out.KeyMetrics, field, v, string(domain.StatementMetrics)+"/"+field, i, prov)
		}
	}
	return out, prov
}

func mergePeriods(dst, src domain.PeriodValues, statement string, idx int, prov Provenance) {
	for period, fields := range src {
		if len(fields) == 0 {
			continue
		}
		acc, ok := dst[period]
		if !ok {
			acc = map[string]float64{}
			dst[period] = acc
		}
		for field, v := range fields {
			mergeValue(acc, field, v, statement+"/"+period+"/"+field, idx, prov)
		}
	}
}

// mergeValue applies the conflict rule for a single field.
func mergeValue(acc map[string]float64, field string, v float64, path string, idx int, prov Provenance) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	cur, ok := acc[field]
	switch {
	case !ok:
		acc[field] = v
		prov[path] = FieldSource{Fragment: idx, Reason: ProvenanceSet}
	case cur == 0 && v != 0:
		acc[field] = v
		prov[path] = FieldSource{Fragment: idx, Reason: ProvenanceZero}
	case math.Abs(v) > math.Abs(cur):
		acc[field] = v
		prov[path] = FieldSource{Fragment: idx, Reason: ProvenanceMagnitude}
	}
}

// replaces reports whether v should take the place of cur: a non-zero value
// beats zero, and otherwise the larger magnitude wins.
func replaces(cur, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return (cur == 0 && v != 0) || math.Abs(v) > math.Abs(cur)
}

// Contributors counts the distinct fragments that supplied at least one
// surviving value.
func (p Provenance) Contributors() int {
	seen := map[int]struct{}{}
	for _, src := range p {
		seen[src.Fragment] = struct{}{}
	}
	return len(seen)
}
