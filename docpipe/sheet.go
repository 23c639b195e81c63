package docpipe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet error tokens. Cells carrying one of these are cleaned to the
// empty string: the row survives, the cell becomes a missing value.
var errorTokens = map[string]bool{
	"#N/A":    true,
	"#REF!":   true,
	"#VALUE!": true,
	"#DIV/0!": true,
	"#NUM!":   true,
	"#NAME?":  true,
	"#NULL!":  true,
}

// IsErrorToken reports whether a cell value is a spreadsheet error code.
func IsErrorToken(v string) bool {
	return errorTokens[strings.ToUpper(strings.TrimSpace(v))]
}

// extractSheet converts a workbook or CSV into header-keyed rows. Calculated
// cell values are used as stored by the producing application; no formula
// evaluation happens here. A workbook with zero data rows is a hard error.
// Two row sets come back: cleaned rows (error tokens blanked) for the
// payload, and raw rows (trimmed only) for quality analysis.
func extractSheet(name string, data []byte) ([]string, []Row, []Row, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(data)
	case ".xls":
		// No OLE2 reader in this stack. Legacy workbooks must be converted
		// upstream; report it clearly instead of failing deep in a parser.
		return nil, nil, nil, fmt.Errorf("legacy .xls workbook %q is not supported, convert to .xlsx", name)
	default:
		records, err = readWorkbook(data)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read %s: %w", name, err)
	}

	if len(records) < 2 {
		return nil, nil, nil, fmt.Errorf("spreadsheet %s has no data rows", name)
	}

	columns := make([]string, len(records[0]))
	for i, h := range records[0] {
		columns[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(records)-1)
	rawRows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(columns))
		rawRow := make(Row, len(columns))
		for i, col := range columns {
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			rawRow[col] = v
			row[col] = cleanCell(v)
		}
		rows = append(rows, row)
		rawRows = append(rawRows, rawRow)
	}
	return columns, rows, rawRows, nil
}

// readWorkbook reads the first sheet of an xlsx-family workbook. GetRows
// returns the cached calculated values, not formula source.
func readWorkbook(data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

// cleanCell trims the value and blanks spreadsheet error tokens.
func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	if IsErrorToken(v) {
		return ""
	}
	return v
}
