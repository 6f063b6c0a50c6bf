package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"finextract/internal/domain"
)

// XLSX renders a statement as a workbook with one sheet per statement type.
// Empty statements still get a sheet with just the header row.
func XLSX(stmt domain.Fragment) ([]byte, error) {
	stmt.Normalize()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, st := range append(append([]domain.StatementType{}, domain.PeriodStatements...), domain.StatementMetrics) {
		title := sheetTitles[st]
		if i == 0 {
			if err := f.SetSheetName("Sheet1", title); err != nil {
				return nil, fmt.Errorf("xlsx rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(title); err != nil {
			return nil, fmt.Errorf("xlsx new sheet %s: %w", title, err)
		}

		var header []string
		var rows [][]any
		if st == domain.StatementMetrics {
			header, rows = metricsGrid(stmt.KeyMetrics)
		} else {
			header, rows = statementGrid(stmt.Statement(st), st)
		}
		if err := writeSheet(f, title, header, rows); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	for col, h := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx header %s!%s: %w", sheet, cell, err)
		}
	}
	for r, row := range rows {
		for col, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("xlsx cell %s!%s: %w", sheet, cell, err)
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 40)
	if len(header) > 1 {
		last, _ := excelize.ColumnNumberToName(len(header))
		_ = f.SetColWidth(sheet, "B", last, 16)
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 1, TopLeftCell: "B2", ActivePane: "bottomRight"})
	return nil
}
