package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Status is the persisted attendance status of one student in one session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	// StatusLate is accepted by storage but no current flow produces it.
	StatusLate Status = "late"
)

// StatusFor maps a present flag to a status.
func StatusFor(present bool) Status {
	if present {
		return StatusPresent
	}
	return StatusAbsent
}

// Method records how a status was determined.
type Method string

const (
	MethodManual Method = "manual"
	MethodRFID   Method = "rfid"
	MethodCSV    Method = "csv_import"
	MethodSample Method = "sample_data"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrNoActiveSession = errors.New("no active attendance session")
	ErrSessionActive   = errors.New("an attendance session is already in progress")
	ErrUIDNotFound     = errors.New("no student found with uid")
	ErrPartialSave     = errors.New("attendance saved partially")
	ErrFeedUnavailable = errors.New("rfid feed unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Class is a teacher's class.
type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required,max=120"`
	Subject   string    `json:"subject,omitempty" validate:"max=120"`
	Code      string    `json:"code,omitempty" validate:"max=32"`
	TeacherID string    `json:"teacher_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is a durable student identity. UID is the RFID tag, empty when unset.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UID       string    `json:"uid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment links a student to a class under a roll number.
type Enrollment struct {
	ClassID    string    `json:"class_id"`
	StudentID  string    `json:"student_id"`
	RollNumber string    `json:"roll_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// RosterEntry is a student as seen from one class.
type RosterEntry struct {
	StudentID  string `json:"id"`
	Name       string `json:"name"`
	UID        string `json:"uid,omitempty"`
	RollNumber string `json:"roll_number"`
}

// Session is one date-scoped attendance-taking event for a class.
type Session struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	SessionDate time.Time `json:"session_date"`
	Topic       string    `json:"topic"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is one student's status within a session. StudentName is a snapshot
// taken when the record was written.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Status      Status    `json:"status"`
	Method      Method    `json:"method"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// SessionDetail is a session with its records.
type SessionDetail struct {
	Session
	Records []Record `json:"attendance_records"`
}
