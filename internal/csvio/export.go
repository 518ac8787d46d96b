package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// ExportHeader is the first line of an attendance export.
var ExportHeader = []string{"Date", "Topic", "Student Name", "Student ID", "Status", "Method", "Session ID"}

const statsMarker = "ATTENDANCE STATISTICS"

// ExportRow is one attendance record flattened for export.
type ExportRow struct {
	Date        string
	Topic       string
	StudentName string
	StudentID   string
	Status      string
	Method      string
	SessionID   string
}

func (r ExportRow) fields() []string {
	return []string{r.Date, r.Topic, r.StudentName, r.StudentID, r.Status, r.Method, r.SessionID}
}

// Summary is the optional statistics block appended after the records.
type Summary struct {
	TotalSessions int
	TotalStudents int
	// OverallRate is the share of present records in percent.
	OverallRate float64
}

func (s Summary) records() [][]string {
	return [][]string{
		{statsMarker},
		{"Total Sessions", fmt.Sprint(s.TotalSessions)},
		{"Total Students", fmt.Sprint(s.TotalStudents)},
		{"Overall Attendance Rate", fmt.Sprintf("%.1f%%", s.OverallRate)},
	}
}

var unsafeFilename = regexp.MustCompile(`[^\w\- .]+`)

// ExportFilename returns "<className>_attendance.<ext>".
func ExportFilename(className, ext string) string {
	name := unsafeFilename.ReplaceAllString(className, "_")
	if name == "" {
		name = "class"
	}
	return name + "_attendance." + ext
}

// WriteExport writes the header, one line per row, and the statistics block
// when summary is not nil.
func WriteExport(w io.Writer, rows []ExportRow, summary *Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.fields()); err != nil {
			return err
		}
	}
	if summary != nil {
		if err := cw.Write([]string{}); err != nil {
			return err
		}
		if err := cw.WriteAll(summary.records()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseExport reads back the record lines written by WriteExport, stopping at
// the statistics block.
func ParseExport(r io.Reader) ([]ExportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(ExportHeader) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}
	var rows []ExportRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && rec[0] == statsMarker {
			break
		}
		if len(rec) != len(ExportHeader) {
			return nil, fmt.Errorf("line has %d fields, want %d", len(rec), len(ExportHeader))
		}
		rows = append(rows, ExportRow{
			Date:        rec[0],
			Topic:       rec[1],
			StudentName: rec[2],
			StudentID:   rec[3],
			Status:      rec[4],
			Method:      rec[5],
			SessionID:   rec[6],
		})
	}
	return rows, nil
}
