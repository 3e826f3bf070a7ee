package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	dataSheet   = "data"
	reportSheet = "report"
)

// EncodeXLSX writes the result rows to a "data" sheet and the report's SQL,
// interpretation and chart spec to a "report" sheet.
func EncodeXLSX(snap Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), dataSheet); err != nil {
		return nil, fmt.Errorf("rename data sheet: %w", err)
	}
	header := make([]any, 0, len(snap.Result.Columns))
	for _, column := range snap.Result.Columns {
		header = append(header, column.Name)
	}
	if err := setRow(f, dataSheet, 1, header); err != nil {
		return nil, err
	}
	for i, row := range snap.Result.Rows {
		values := make([]any, len(row))
		for j, value := range row {
			values[j] = cellValue(value)
		}
		if err := setRow(f, dataSheet, i+2, values); err != nil {
			return nil, err
		}
	}
	if len(header) > 0 {
		if err := f.SetPanes(dataSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return nil, fmt.Errorf("freeze header row: %w", err)
		}
	}

	if _, err := f.NewSheet(reportSheet); err != nil {
		return nil, fmt.Errorf("create report sheet: %w", err)
	}
	for i, pair := range reportRows(snap) {
		if err := setRow(f, reportSheet, i+1, pair); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func reportRows(snap Snapshot) [][]any {
	spec := snap.Report.Spec
	bindings := make([]string, 0, len(spec.Bindings))
	for _, binding := range spec.Bindings {
		bindings = append(bindings, string(binding.Role)+"="+binding.Column)
	}
	return [][]any{
		{"id", snap.Report.ID},
		{"name", snap.Report.Name},
		{"sql", snap.Report.SQL},
		{"interpretation", snap.Report.Interpretation},
		{"template", string(spec.Template)},
		{"aggregation", string(spec.Aggregation)},
		{"bindings", strings.Join(bindings, ", ")},
		{"rows", snap.Result.RowCount()},
		{"truncated", snap.Truncated},
		{"exported_at", snap.ExportedAt.UTC().Format(time.RFC3339)},
	}
}
