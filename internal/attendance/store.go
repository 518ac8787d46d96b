package attendance

import (
	"context"
	"time"
)

// Store is the storage boundary. Lookups return nil, nil when nothing matches.
type Store interface {
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (*Class, error)
	ListClasses(ctx context.Context, teacherID string) ([]Class, error)
	DeleteClass(ctx context.Context, id string) error

	InsertStudent(ctx context.Context, s Student) (Student, error)
	// FindStudentByUID matches trimmed, case-folded UIDs. The oldest student wins
	// when several share a UID.
	FindStudentByUID(ctx context.Context, uid string) (*Student, error)
	RenameStudent(ctx context.Context, id, name string) error
	// DeleteStudent cascades to enrollments and attendance records.
	DeleteStudent(ctx context.Context, id string) error

	InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	GetEnrollment(ctx context.Context, classID, studentID string) (*Enrollment, error)
	// ListRoster returns the class's students in enrollment order.
	ListRoster(ctx context.Context, classID string) ([]RosterEntry, error)

	InsertSession(ctx context.Context, s Session) (Session, error)
	// FindSessionBetween returns the earliest session of the class whose date
	// falls within [from, to].
	FindSessionBetween(ctx context.Context, classID string, from, to time.Time) (*Session, error)
	// ListSessions returns sessions newest first, each with its records.
	ListSessions(ctx context.Context, classID string) ([]SessionDetail, error)

	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
	InsertRecords(ctx context.Context, recs []Record) error
	// UpdateRecord rewrites status, method and name snapshot of the record
	// identified by (SessionID, StudentID).
	UpdateRecord(ctx context.Context, rec Record) error
}
