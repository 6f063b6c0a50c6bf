package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"finextract/internal/domain"
	"finextract/internal/export"
)

func sampleStatement() domain.Fragment {
	f := domain.NewFragment()
	f.IncomeStatement["2023-12-31"] = map[string]float64{"Total Revenue": 1100, "Net Income": 40}
	f.IncomeStatement["2024-12-31"] = map[string]float64{"Total Revenue": 1234, "Net Income": -56, "Widgets Shipped": 7}
	f.BalanceSheet["2024-12-31"] = map[string]float64{"Total Assets": 5000}
	f.KeyMetrics["Shares Outstanding"] = 450000
	return f
}

func TestXLSX_SheetsAndLayout(t *testing.T) {
	data, err := export.XLSX(sampleStatement())
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Income Statement", "Balance Sheet", "Cash Flow", "Key Metrics"}, wb.GetSheetList())

	rows, err := wb.GetRows("Income Statement")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Field", "2024-12-31", "2023-12-31"}, rows[0])
	// Catalog order first, unknown fields last.
	assert.Equal(t, []string{"Total Revenue", "1234", "1100"}, rows[1])
	assert.Equal(t, []string{"Net Income", "-56", "40"}, rows[2])
	assert.Equal(t, []string{"Widgets Shipped", "7"}, rows[3])

	cash, err := wb.GetRows("Cash Flow")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Field"}}, cash)

	metrics, err := wb.GetRows("Key Metrics")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Metric", "Value"}, {"Shares Outstanding", "450000"}}, metrics)
}

func TestCSV_LongForm(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.CSV(&buf, sampleStatement()))

	require.True(t, bytes.HasPrefix(buf.Bytes(), export.BOM))
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(export.BOM):])).ReadAll()
	require.NoError(t, err)

	assert.Equal(t, []string{"Statement", "Period", "Field", "Value"}, records[0])
	assert.Contains(t, records, []string{"income_statement", "2024-12-31", "Net Income", "-56"})
	assert.Contains(t, records, []string{"income_statement", "2023-12-31", "Total Revenue", "1100"})
	assert.Contains(t, records, []string{"balance_sheet", "2024-12-31", "Total Assets", "5000"})
	assert.Contains(t, records, []string{"key_metrics", "", "Shares Outstanding", "450000"})
	assert.Len(t, records, 1+5+1+1)
}

func TestCSV_EmptyStatement(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.CSV(&buf, domain.Fragment{}))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(export.BOM):])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"BRK.B", "BRK_B"},
		{"acme  corp//2024", "acme_corp_2024"},
		{"___", "statements"},
		{"", "statements"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, export.SanitizeFilename(tt.in), tt.in)
	}
}

func TestBuildFilename(t *testing.T) {
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "ACME_statements_2025-03-09.xlsx", export.BuildFilename("ACME", "xlsx", now))
}
