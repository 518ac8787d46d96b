package csvio

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	recordsSheet = "Attendance"
	statsSheet   = "Statistics"
)

// WriteXLSX writes the export as a workbook: records on one sheet and, when
// summary is set, statistics on a second.
func WriteXLSX(w io.Writer, rows []ExportRow, summary *Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", recordsSheet); err != nil {
		return err
	}
	if err := setRow(f, recordsSheet, 1, ExportHeader); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, recordsSheet, i+2, r.fields()); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(recordsSheet, "A", "G", 22); err != nil {
		return err
	}

	if summary != nil {
		if _, err := f.NewSheet(statsSheet); err != nil {
			return err
		}
		for i, rec := range summary.records() {
			if err := setRow(f, statsSheet, i+1, rec); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
