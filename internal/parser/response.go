package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"finextract/internal/domain"
)

const fragmentSchema = `{
  "type": "object",
  "required": ["income_statement", "balance_sheet", "cashflow", "key_metrics"],
  "properties": {
    "income_statement": {"$ref": "#/$defs/periods"},
    "balance_sheet": {"$ref": "#/$defs/periods"},
    "cashflow": {"$ref": "#/$defs/periods"},
    "key_metrics": {"$ref": "#/$defs/fields"}
  },
  "$defs": {
    "fields": {
      "type": "object",
      "additionalProperties": {"type": ["number", "string", "null"]}
    },
    "periods": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/fields"}
    }
  }
}`

var fragmentValidator = jsonschema.MustCompileString("fragment.json", fragmentSchema)

// ParseFragment turns raw model output into a fragment. Code fences and prose
// around the JSON are ignored; slightly broken JSON is repaired. Output that
// still does not decode, or lacks any of the four statement keys, yields a
// MalformedResponseError.
func ParseFragment(raw string) (domain.Fragment, error) {
	body := ExtractJSONObject(StripCodeFences(raw))
	if body == "" {
		return domain.NewFragment(), &domain.MalformedResponseError{Raw: truncate(raw, 500), Err: errors.New("no JSON object in response")}
	}

	v, err := decodeLenient(body)
	if err != nil {
		return domain.NewFragment(), &domain.MalformedResponseError{Raw: truncate(raw, 500), Err: err}
	}

	// Some models wrap the answer in {"data": {...}}.
	if obj, ok := v.(map[string]any); ok && len(obj) == 1 {
		if inner, ok := obj["data"].(map[string]any); ok {
			v = inner
		}
	}

	if err := fragmentValidator.Validate(v); err != nil {
		return domain.NewFragment(), &domain.MalformedResponseError{Raw: truncate(raw, 500), Err: fmt.Errorf("unexpected shape: %w", err)}
	}

	obj := v.(map[string]any)
	rf := domain.RawFragment{
		IncomeStatement: rawPeriods(obj[string(domain.StatementIncome)]),
		BalanceSheet:    rawPeriods(obj[string(domain.StatementBalance)]),
		Cashflow:        rawPeriods(obj[string(domain.StatementCashflow)]),
		KeyMetrics:      rawFields(obj[string(domain.StatementMetrics)]),
	}
	return rf.Fragment(), nil
}

// decodeLenient tries strict JSON, then json-repair, then Hjson.
func decodeLenient(body string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err == nil {
		return v, nil
	}

	if repaired, err := jsonrepair.RepairJSON(body); err == nil {
		if err := json.Unmarshal([]byte(repaired), &v); err == nil {
			return v, nil
		}
	}

	var hv any
	if err := hjson.Unmarshal([]byte(body), &hv); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	// Round-trip so nested maps and numbers have encoding/json types.
	b, err := json.Marshal(hv)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func rawPeriods(v any) map[string]map[string]*float64 {
	periods, _ := v.(map[string]any)
	out := make(map[string]map[string]*float64, len(periods))
	for period, fields := range periods {
		key := NormalizePeriod(period)
		if key == "" {
			continue
		}
		rf := rawFields(fields)
		if out[key] == nil {
			out[key] = rf
			continue
		}
		// Two labels for the same period: keep whichever value the merge
		// rule prefers so the result does not depend on map order.
		for k, val := range rf {
			out[key][k] = preferValue(out[key][k], val)
		}
	}
	return out
}

func rawFields(v any) map[string]*float64 {
	fields, _ := v.(map[string]any)
	out := make(map[string]*float64, len(fields))
	for name, val := range fields {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = preferValue(out[name], toNumber(val))
	}
	return out
}

// preferValue picks between two readings of one field. Null never replaces a
// number; otherwise the merge rule applies.
func preferValue(cur, v *float64) *float64 {
	switch {
	case v == nil:
		return cur
	case cur == nil:
		return v
	case replaces(*cur, *v):
		return v
	default:
		return cur
	}
}

// toNumber returns nil for null and for strings that are not numbers.
func toNumber(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, ok := ParseNumber(n); ok {
			return &f
		}
	}
	return nil
}

// ParseNumber reads a figure as printed in a filing: "1,234", "(1,234)",
// "$ 1.5", "-12%", "—". Dashes alone mean zero.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	switch s {
	case "-", "\u2014", "\u2013":
		return 0, true
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', '€', '£', '¥', '%', ' ', '\u00a0':
			return -1
		case '\u2212', '\u2013':
			return '-'
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// StripCodeFences removes Markdown code fences around a response.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// ExtractJSONObject returns the text from the first '{' to the last '}'.
func ExtractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
