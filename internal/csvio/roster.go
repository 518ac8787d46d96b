package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Columns are the recognized roster import columns.
var Columns = []string{"UID", "FirstName", "LastName", "Class", "INTime", "OUTTime"}

// ErrEmpty is returned when the input has no data rows.
var ErrEmpty = errors.New("csv file is empty or has only headers")

// Row is one line of an RFID roster export. Unknown columns are ignored and
// missing ones read as empty.
type Row struct {
	Line      int    `json:"line"`
	UID       string `json:"uid"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Class     string `json:"class"`
	INTime    string `json:"in_time"`
	OUTTime   string `json:"out_time"`
}

// ParseRoster reads a header row followed by data rows. Fields are trimmed;
// quoting is tolerated but not required.
func ParseRoster(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		header map[string]int
		rows   []Row
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		if header == nil {
			header = make(map[string]int, len(rec))
			for i, h := range rec {
				h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
				if _, dup := header[h]; !dup {
					header[h] = i
				}
			}
			continue
		}
		line, _ := cr.FieldPos(0)
		get := func(col string) string {
			i, ok := header[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rows = append(rows, Row{
			Line:      line,
			UID:       get("UID"),
			FirstName: get("FirstName"),
			LastName:  get("LastName"),
			Class:     get("Class"),
			INTime:    get("INTime"),
			OUTTime:   get("OUTTime"),
		})
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteTemplate writes an import template with two example rows.
func WriteTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		Columns,
		{"89C39994", "Kanwar", "Aaryaman", "CSE-AI", "2025-09-25 23:40:56", "2025-09-25 23:43:23"},
		{"99AC9B94", "Sameer", "Kumar", "CSE-AI", "2025-09-25 23:43:55", "2025-09-25 23:44:05"},
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
