package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"finextract/internal/domain"
	"finextract/internal/fanout"
	"finextract/internal/parser"
)

// Diagnostics describes how a run went, in particular why a statement came
// out empty.
type Diagnostics struct {
	Backend      string         `json:"backend,omitempty"`
	Units        int            `json:"units"`
	FailedUnits  []UnitFailure  `json:"failed_units,omitempty"`
	FailedParts  []PartFailure  `json:"failed_parts,omitempty"`
	Contributors int            `json:"contributors"`
	Warnings     []string       `json:"warnings,omitempty"`
	KeywordHits  map[string]int `json:"keyword_hits,omitempty"`
	ModelOutput  string         `json:"model_output,omitempty"`
}

// UnitFailure is a page or chunk whose structuring failed.
type UnitFailure struct {
	Number int    `json:"number"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// PartFailure is a sub-document of a split document that failed as a whole.
type PartFailure struct {
	Part  int    `json:"part"`
	Error string `json:"error"`
}

// outcome collects the per-unit results of one or more fan-outs.
type outcome struct {
	results []fanout.Result
	text    strings.Builder
}

func (o *outcome) add(results []fanout.Result, text string) {
	o.results = append(o.results, results...)
	if text != "" {
		if o.text.Len() > 0 {
			o.text.WriteString("\f")
		}
		o.text.WriteString(text)
	}
}

func failureKind(err error) string {
	var (
		transport *domain.TransportError
		malformed *domain.MalformedResponseError
	)
	switch {
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "error"
	}
}

// finish merges the collected fragments and fills the diagnostics. When the
// statement is empty it also scans the source text (or the model output when
// there is no text) for financial keywords and summarizes what the model
// returned.
func (o *outcome) finish(d *Diagnostics) domain.Fragment {
	merged, prov := parser.MergeWithProvenance(fanout.Fragments(o.results)...)
	d.Units = len(o.results)
	d.Contributors = prov.Contributors()
	for _, r := range fanout.Failed(o.results) {
		d.FailedUnits = append(d.FailedUnits, UnitFailure{Number: r.Number, Kind: failureKind(r.Err), Error: r.Err.Error()})
	}

	if !merged.IsEmpty() {
		return merged
	}

	keywords := parser.DefaultCatalog().Keywords
	source := o.text.String()
	if source == "" {
		var raws []string
		for _, r := range o.results {
			raws = append(raws, r.Raw)
		}
		source = strings.Join(raws, "\n")
	}
	d.KeywordHits = parser.KeywordHits(source, keywords)
	d.ModelOutput = summarizeModelOutput(o.results)
	return merged
}

func summarizeModelOutput(results []fanout.Result) string {
	if len(results) == 0 {
		return "no pages or chunks were sent to the model"
	}
	counts := map[string]int{}
	var sample string
	for _, r := range results {
		switch {
		case r.Err != nil:
			counts[failureKind(r.Err)]++
		case r.Fragment.IsEmpty():
			counts["empty"]++
		default:
			counts["data"]++
		}
		if sample == "" && strings.TrimSpace(r.Raw) != "" {
			sample = strings.TrimSpace(r.Raw)
		}
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	out := fmt.Sprintf("%d responses: %s", len(results), strings.Join(parts, ", "))
	if sample != "" {
		if len(sample) > 200 {
			sample = sample[:200] + "..."
		}
		out += "; first output: " + sample
	}
	return out
}

// summarize renders the human-readable run summary.
func summarize(res *Result) string {
	st := res.Statement
	d := res.Diagnostics
	if st.IsEmpty() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "No financial data extracted from %d pages (%s strategy).", res.Pages, res.Strategy)
		if len(d.KeywordHits) > 0 {
			fmt.Fprintf(&sb, " The document mentions %d financial keywords, so the statements are likely present but were not read.", len(d.KeywordHits))
		} else {
			sb.WriteString(" No financial keywords were found; the document may not contain statements.")
		}
		if d.ModelOutput != "" {
			sb.WriteString(" Model: " + d.ModelOutput + ".")
		}
		return sb.String()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Extracted %d fields from %d of %d fragments across %d periods (%s strategy, %d pages",
		st.FieldCount(), d.Contributors, d.Units, len(st.Periods()), res.Strategy, res.Pages)
	if d.Backend != "" {
		fmt.Fprintf(&sb, ", %s text", d.Backend)
	}
	sb.WriteString(").")
	for _, t := range domain.PeriodStatements {
		if n := len(st.Statement(t)); n > 0 {
			fmt.Fprintf(&sb, " %s: %d periods.", t, n)
		}
	}
	if n := len(st.KeyMetrics); n > 0 {
		fmt.Fprintf(&sb, " key_metrics: %d.", n)
	}
	if n := len(d.FailedUnits); n > 0 {
		fmt.Fprintf(&sb, " %d fragments failed.", n)
	}
	if n := len(d.FailedParts); n > 0 {
		fmt.Fprintf(&sb, " %d document parts failed.", n)
	}
	return sb.String()
}
