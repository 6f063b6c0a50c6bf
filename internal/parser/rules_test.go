package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"finextract/internal/parser"
)

const operationsPage = `CONSOLIDATED STATEMENTS OF OPERATIONS
(in thousands)
                          2024        2023
Total revenue           1,234       1,100
Cost of sales            (500)       (450)
Widgets shipped            10          12
Net income                 (56)         40
Shares outstanding      450,000`

func TestRuleExtractor_ReadsColumnsUnderYearHeader(t *testing.T) {
	f := parser.NewRuleExtractor(parser.DefaultCatalog()).Extract(operationsPage)

	assert.Equal(t, map[string]float64{"Total Revenue": 1234, "Cost Of Revenue": -500, "Net Income": -56}, f.IncomeStatement["2024-12-31"])
	assert.Equal(t, map[string]float64{"Total Revenue": 1100, "Cost Of Revenue": -450, "Net Income": 40}, f.IncomeStatement["2023-12-31"])
	assert.Equal(t, 450000.0, f.KeyMetrics["Shares Outstanding"])
}

func TestRuleExtractor_DateHeaders(t *testing.T) {
	text := `BALANCE SHEET
                     June 30, 2024    June 30, 2023
Total assets           5,000,000        4,800,000
Total liabilities      (2,000,000)      1,900,000`

	f := parser.NewRuleExtractor(parser.DefaultCatalog()).Extract(text)

	assert.Equal(t, 5000000.0, f.BalanceSheet["2024-06-30"]["Total Assets"])
	assert.Equal(t, 4800000.0, f.BalanceSheet["2023-06-30"]["Total Assets"])
	assert.Equal(t, -2000000.0, f.BalanceSheet["2024-06-30"]["Total Liabilities Net Minority Interest"])
}

func TestRuleExtractor_FirstValueWins(t *testing.T) {
	text := `2024
Total revenue 900
2024
Revenue 1,000`

	f := parser.NewRuleExtractor(parser.DefaultCatalog()).Extract(text)

	assert.Equal(t, 900.0, f.IncomeStatement["2024-12-31"]["Total Revenue"])
}

func TestRuleExtractor_NoHeaderSkipsPeriodStatements(t *testing.T) {
	f := parser.NewRuleExtractor(parser.DefaultCatalog()).Extract("Total revenue 1,234\nEmployees 4,200")

	assert.Empty(t, f.IncomeStatement)
	assert.Equal(t, 4200.0, f.KeyMetrics["Employees"])
}

func TestRuleExtractor_NothingRecognized(t *testing.T) {
	f := parser.NewRuleExtractor(parser.DefaultCatalog()).Extract("Letter to shareholders\nWe had a great year.")

	assert.True(t, f.IsEmpty())
}
