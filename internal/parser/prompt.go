package parser

import (
	"fmt"
	"strings"

	"finextract/internal/domain"
)

// SystemPrompt is sent as the system message on every structuring call.
const SystemPrompt = `You are a financial data extraction assistant. You read pages of company filings (annual reports, quarterly reports, 10-K/10-Q) and return the financial statement figures you find as strict JSON. You never invent numbers.`

const shapeInstructions = `Return ONLY a JSON object with exactly these four top-level keys, each present even when empty:
{
  "income_statement": { "<period YYYY-MM-DD>": { "<field>": <number> } },
  "balance_sheet":    { "<period YYYY-MM-DD>": { "<field>": <number> } },
  "cashflow":         { "<period YYYY-MM-DD>": { "<field>": <number> } },
  "key_metrics":      { "<field>": <number> }
}

RULES:
- Periods are fiscal period end dates in ISO format (e.g. "2024-12-31"). Use the column header dates; if only a year is shown, use December 31 of that year unless the filing states another fiscal year end.
- Values are plain numbers: no currency symbols, no thousands separators, no percent signs. Parenthesised figures such as (1,234) are negative: -1234.
- If the statement says figures are "in thousands" or "in millions", multiply so every value is in units of currency.
- Use the canonical field names listed below. Map synonyms to the canonical name.
- key_metrics holds latest known, non-period values such as shares outstanding.
- No markdown, no code fences, no commentary.`

const exampleFull = `EXAMPLE (page with data):
{"income_statement":{"2024-12-31":{"Total Revenue":1250000000,"Net Income":98000000},"2023-12-31":{"Total Revenue":1100000000,"Net Income":-12000000}},"balance_sheet":{},"cashflow":{},"key_metrics":{"Shares Outstanding":450000000}}`

const exampleEmpty = `EXAMPLE (page with no financial figures, e.g. a table of contents):
{"income_statement":{},"balance_sheet":{},"cashflow":{},"key_metrics":{}}`

const partialInstruction = `IMPORTANT: If ANY relevant number is visible, return it, even if the rest of the statement is missing or the page shows only part of a table. Partial data is always better than an empty object. Return the empty structure only when the page truly contains no financial statement figures.`

// fieldGuide lists the target fields with synonyms for every statement.
func fieldGuide(c *Catalog) string {
	var sb strings.Builder
	sb.WriteString("TARGET FIELDS (canonical name, then common labels):\n")
	for _, st := range []domain.StatementType{domain.StatementIncome, domain.StatementBalance, domain.StatementCashflow, domain.StatementMetrics} {
		sb.WriteString(string(st) + ":\n")
		sb.WriteString(c.describe(st))
	}
	return sb.String()
}

// BuildVisionPrompt returns the prompt sent with a single page image.
func BuildVisionPrompt(subject string, page, totalPages int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The attached image is page %d of %d of a financial filing", page, totalPages)
	if subject != "" {
		fmt.Fprintf(&sb, " for %s", subject)
	}
	sb.WriteString(". Extract every financial statement figure visible on THIS page only.\n\n")
	writeCommon(&sb)
	return sb.String()
}

// BuildTextPrompt returns the prompt for structuring an extracted text chunk.
// Chunk numbers are 1-indexed.
func BuildTextPrompt(subject, text string, chunk, totalChunks int) string {
	var sb strings.Builder
	sb.WriteString("Below is text extracted from a financial filing")
	if subject != "" {
		fmt.Fprintf(&sb, " for %s", subject)
	}
	if totalChunks > 1 {
		fmt.Fprintf(&sb, " (part %d of %d)", chunk, totalChunks)
	}
	sb.WriteString(". Tables may have lost their alignment; read each row as a label followed by one value per period column.\n\n")
	writeCommon(&sb)
	sb.WriteString("\nTEXT:\n<<<\n")
	sb.WriteString(text)
	sb.WriteString("\n>>>\n")
	return sb.String()
}

func writeCommon(sb *strings.Builder) {
	sb.WriteString(shapeInstructions)
	sb.WriteString("\n\n")
	sb.WriteString(fieldGuide(DefaultCatalog()))
	sb.WriteString("\n")
	sb.WriteString(exampleFull)
	sb.WriteString("\n\n")
	sb.WriteString(exampleEmpty)
	sb.WriteString("\n\n")
	sb.WriteString(partialInstruction)
	sb.WriteString("\n")
}
