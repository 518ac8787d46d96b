package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	classes     []Class
	students    []Student
	enrollments []Enrollment
	sessions    []Session
	records     []Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateClass(_ context.Context, c Class) (Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, existing := range m.classes {
		if existing.ID == c.ID {
			return Class{}, fmt.Errorf("class %s: %w", c.ID, ErrConflict)
		}
	}
	c.CreatedAt = m.now()
	m.classes = append(m.classes, c)
	return c, nil
}

func (m *MemoryStore) GetClass(_ context.Context, id string) (*Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.classes {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListClasses(_ context.Context, teacherID string) ([]Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Class
	for _, c := range m.classes {
		if teacherID == "" || c.TeacherID == teacherID {
			res = append(res, c)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteClass(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes = filter(m.classes, func(c Class) bool { return c.ID != id })
	m.enrollments = filter(m.enrollments, func(e Enrollment) bool { return e.ClassID != id })
	dropped := map[string]bool{}
	m.sessions = filter(m.sessions, func(s Session) bool {
		if s.ClassID == id {
			dropped[s.ID] = true
			return false
		}
		return true
	})
	m.records = filter(m.records, func(r Record) bool { return !dropped[r.SessionID] })
	return nil
}

func (m *MemoryStore) InsertStudent(_ context.Context, s Student) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = m.now()
	m.students = append(m.students, s)
	return s, nil
}

func (m *MemoryStore) FindStudentByUID(_ context.Context, uid string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := NormalizeUID(uid)
	if want == "" {
		return nil, nil
	}
	for _, s := range m.students {
		if s.UID != "" && NormalizeUID(s.UID) == want {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) RenameStudent(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.students {
		if m.students[i].ID == id {
			m.students[i].Name = name
			return nil
		}
	}
	return fmt.Errorf("student %s: %w", id, ErrNotFound)
}

func (m *MemoryStore) DeleteStudent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students = filter(m.students, func(s Student) bool { return s.ID != id })
	m.enrollments = filter(m.enrollments, func(e Enrollment) bool { return e.StudentID != id })
	m.records = filter(m.records, func(r Record) bool { return r.StudentID != id })
	return nil
}

func (m *MemoryStore) InsertEnrollment(_ context.Context, e Enrollment) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.enrollments {
		if existing.ClassID == e.ClassID && existing.StudentID == e.StudentID {
			return Enrollment{}, fmt.Errorf("enrollment %s/%s: %w", e.ClassID, e.StudentID, ErrConflict)
		}
	}
	e.CreatedAt = m.now()
	m.enrollments = append(m.enrollments, e)
	return e, nil
}

func (m *MemoryStore) GetEnrollment(_ context.Context, classID, studentID string) (*Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.ClassID == classID && e.StudentID == studentID {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListRoster(_ context.Context, classID string) ([]RosterEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]Student, len(m.students))
	for _, s := range m.students {
		byID[s.ID] = s
	}
	var res []RosterEntry
	for _, e := range m.enrollments {
		if e.ClassID != classID {
			continue
		}
		s, ok := byID[e.StudentID]
		if !ok {
			continue
		}
		res = append(res, RosterEntry{StudentID: s.ID, Name: s.Name, UID: s.UID, RollNumber: e.RollNumber})
	}
	return res, nil
}

func (m *MemoryStore) InsertSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = m.now()
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *MemoryStore) FindSessionBetween(_ context.Context, classID string, from, to time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Session
	for _, s := range m.sessions {
		if s.ClassID != classID || s.SessionDate.Before(from) || s.SessionDate.After(to) {
			continue
		}
		if found == nil || s.SessionDate.Before(found.SessionDate) {
			s := s
			found = &s
		}
	}
	return found, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, classID string) ([]SessionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []SessionDetail
	for _, s := range m.sessions {
		if s.ClassID != classID {
			continue
		}
		d := SessionDetail{Session: s, Records: []Record{}}
		for _, r := range m.records {
			if r.SessionID == s.ID {
				d.Records = append(d.Records, r)
			}
		}
		res = append(res, d)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].SessionDate.After(res[j].SessionDate)
	})
	return res, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *MemoryStore) InsertRecords(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.RecordedAt.IsZero() {
			r.RecordedAt = m.now()
		}
		m.records = append(m.records, r)
	}
	return nil
}

func (m *MemoryStore) UpdateRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := false
	for i := range m.records {
		r := &m.records[i]
		if r.SessionID == rec.SessionID && r.StudentID == rec.StudentID {
			r.Status = rec.Status
			r.Method = rec.Method
			r.StudentName = rec.StudentName
			r.RecordedAt = rec.RecordedAt
			updated = true
		}
	}
	if !updated {
		return fmt.Errorf("record %s/%s: %w", rec.SessionID, rec.StudentID, ErrNotFound)
	}
	return nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
