package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"finextract/internal/domain"
)

// BOM is the UTF-8 byte order mark Excel on Windows needs to detect encoding.
var BOM = []byte{0xEF, 0xBB, 0xBF}

var csvColumns = []string{"Statement", "Period", "Field", "Value"}

// CSV writes a statement in long form: one row per value. Key metrics have
// an empty period.
func CSV(w io.Writer, stmt domain.Fragment) error {
	if _, err := w.Write(BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}

	stmt.Normalize()
	for _, st := range domain.PeriodStatements {
		header, rows := statementGrid(stmt.Statement(st), st)
		for _, row := range rows {
			name := row[0].(string)
			for i, v := range row[1:] {
				if v == nil {
					continue
				}
				if err := cw.Write([]string{string(st), header[i+1], name, formatValue(v.(float64))}); err != nil {
					return err
				}
			}
		}
	}
	_, rows := metricsGrid(stmt.KeyMetrics)
	for _, row := range rows {
		if err := cw.Write([]string{string(domain.StatementMetrics), "", row[0].(string), formatValue(row[1].(float64))}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
