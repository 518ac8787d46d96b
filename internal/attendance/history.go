package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartpresent/internal/csvio"
)

// CreateClass validates and stores a class owned by teacherID.
func (s *Service) CreateClass(ctx context.Context, c Class) (Class, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Subject = strings.TrimSpace(c.Subject)
	c.Code = strings.TrimSpace(c.Code)
	if err := validate.Struct(c); err != nil {
		return Class{}, validationError("%v", err)
	}
	return s.store.CreateClass(ctx, c)
}

// GetClass returns a class or ErrNotFound.
func (s *Service) GetClass(ctx context.Context, id string) (Class, error) {
	c, err := s.store.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if c == nil {
		return Class{}, fmt.Errorf("class %s: %w", id, ErrNotFound)
	}
	return *c, nil
}

// ListClasses returns the classes of a teacher, or all when teacherID is empty.
func (s *Service) ListClasses(ctx context.Context, teacherID string) ([]Class, error) {
	classes, err := s.store.ListClasses(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes = []Class{}
	}
	return classes, nil
}

// DeleteClass removes a class and its board.
func (s *Service) DeleteClass(ctx context.Context, id string) error {
	if _, err := s.GetClass(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteClass(ctx, id); err != nil {
		return err
	}
	s.Forget(id)
	return nil
}

// Roster returns the persisted roster of a class.
func (s *Service) Roster(ctx context.Context, classID string) ([]RosterEntry, error) {
	return s.store.ListRoster(ctx, classID)
}

// Sessions returns persisted sessions of a class, newest first.
func (s *Service) Sessions(ctx context.Context, classID string) ([]SessionDetail, error) {
	if _, err := s.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, classID)
}

// SessionSummary is a history line.
type SessionSummary struct {
	Session
	Records int `json:"records"`
	Present int `json:"present"`
}

// History lists sessions of a class with record counts, newest first.
func (s *Service) History(ctx context.Context, classID string) ([]SessionSummary, error) {
	details, err := s.Sessions(ctx, classID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(details))
	for _, d := range details {
		sum := SessionSummary{Session: d.Session, Records: len(d.Records)}
		for _, r := range d.Records {
			if r.Status == StatusPresent {
				sum.Present++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Since keeps sessions dated at or after cutoff. A zero cutoff keeps all.
func Since(details []SessionDetail, cutoff time.Time) []SessionDetail {
	if cutoff.IsZero() {
		return details
	}
	var out []SessionDetail
	for _, d := range details {
		if !d.SessionDate.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out
}

// ExportRows flattens sessions into export lines, one per record.
func ExportRows(details []SessionDetail) []csvio.ExportRow {
	var rows []csvio.ExportRow
	for _, d := range details {
		for _, r := range d.Records {
			rows = append(rows, csvio.ExportRow{
				Date:        d.SessionDate.Format(time.RFC3339),
				Topic:       d.Topic,
				StudentName: r.StudentName,
				StudentID:   r.StudentID,
				Status:      string(r.Status),
				Method:      string(r.Method),
				SessionID:   d.ID,
			})
		}
	}
	return rows
}

// Summarize computes the export statistics block.
func Summarize(details []SessionDetail, students int) csvio.Summary {
	sum := csvio.Summary{TotalSessions: len(details), TotalStudents: students}
	total, present := 0, 0
	for _, d := range details {
		for _, r := range d.Records {
			total++
			if r.Status == StatusPresent {
				present++
			}
		}
	}
	if total > 0 {
		sum.OverallRate = float64(present) / float64(total) * 100
	}
	return sum
}

// Tally is one student's present/absent count across sessions.
type Tally struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
}

// Tallies counts records per rostered student. Records of students no longer
// on the roster are ignored.
func Tallies(roster []RosterEntry, details []SessionDetail) []Tally {
	index := make(map[string]int, len(roster))
	out := make([]Tally, len(roster))
	for i, e := range roster {
		index[e.StudentID] = i
		out[i] = Tally{StudentID: e.StudentID, Name: e.Name}
	}
	for _, d := range details {
		for _, r := range d.Records {
			i, ok := index[r.StudentID]
			if !ok {
				continue
			}
			if r.Status == StatusPresent {
				out[i].Present++
			} else {
				out[i].Absent++
			}
		}
	}
	return out
}
