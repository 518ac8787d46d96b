package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateClass inserts a class.
func (r *Repository) CreateClass(ctx context.Context, c Class) (Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, name, subject, code, teacher_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.Name, c.Subject, c.Code, nullable(c.TeacherID))
	if err := row.Scan(&c.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Class{}, fmt.Errorf("class %s: %w", c.ID, ErrConflict)
		}
		return Class{}, err
	}
	return c, nil
}

const classColumns = `id, name, subject, code, COALESCE(teacher_id, ''), created_at`

func scanClass(sc interface{ Scan(...any) error }) (Class, error) {
	var c Class
	err := sc.Scan(&c.ID, &c.Name, &c.Subject, &c.Code, &c.TeacherID, &c.CreatedAt)
	return c, err
}

// GetClass returns a class by id.
func (r *Repository) GetClass(ctx context.Context, id string) (*Class, error) {
	c, err := scanClass(r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListClasses returns classes, optionally only those of one teacher.
func (r *Repository) ListClasses(ctx context.Context, teacherID string) ([]Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes`
	args := []any{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, teacherID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteClass removes a class; enrollments and sessions cascade.
func (r *Repository) DeleteClass(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return err
}

// InsertStudent writes a new student.
func (r *Repository) InsertStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, uid)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, s.ID, s.Name, nullable(s.UID))
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Student{}, err
	}
	return s, nil
}

// FindStudentByUID returns the oldest student carrying the UID.
func (r *Repository) FindStudentByUID(ctx context.Context, uid string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(uid, ''), created_at
		FROM students
		WHERE uid IS NOT NULL AND UPPER(TRIM(uid)) = UPPER(TRIM($1))
		ORDER BY created_at, id
		LIMIT 1
	`, uid)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.UID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// RenameStudent overwrites a student's name.
func (r *Repository) RenameStudent(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET name = $2 WHERE id = $1`, id, name)
	return err
}

// DeleteStudent removes a student; enrollments and records cascade.
func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	return err
}

// InsertEnrollment links a student to a class.
func (r *Repository) InsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (class_id, student_id, roll_number)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, e.ClassID, e.StudentID, e.RollNumber)
	if err := row.Scan(&e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Enrollment{}, fmt.Errorf("enrollment %s/%s: %w", e.ClassID, e.StudentID, ErrConflict)
		}
		return Enrollment{}, err
	}
	return e, nil
}

// GetEnrollment returns the enrollment of a student in a class.
func (r *Repository) GetEnrollment(ctx context.Context, classID, studentID string) (*Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT class_id, student_id, roll_number, created_at
		FROM enrollments WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	var e Enrollment
	if err := row.Scan(&e.ClassID, &e.StudentID, &e.RollNumber, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// ListRoster returns enrolled students in enrollment order.
func (r *Repository) ListRoster(ctx context.Context, classID string) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, COALESCE(s.uid, ''), e.roll_number
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.class_id = $1
		ORDER BY e.created_at, s.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.StudentID, &e.Name, &e.UID, &e.RollNumber); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// InsertSession writes a new session.
func (r *Repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, class_id, session_date, topic, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.ClassID, s.SessionDate, s.Topic, nullable(s.CreatedBy))
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

const sessionColumns = `id, class_id, session_date, topic, COALESCE(created_by, ''), created_at`

func scanSession(sc interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := sc.Scan(&s.ID, &s.ClassID, &s.SessionDate, &s.Topic, &s.CreatedBy, &s.CreatedAt)
	return s, err
}

// FindSessionBetween returns the earliest session of a class within [from, to].
func (r *Repository) FindSessionBetween(ctx context.Context, classID string, from, to time.Time) (*Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE class_id = $1 AND session_date >= $2 AND session_date <= $3
		ORDER BY session_date, created_at
		LIMIT 1
	`, classID, from, to))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions newest first with their records.
func (r *Repository) ListSessions(ctx context.Context, classID string) ([]SessionDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE class_id = $1
		ORDER BY session_date DESC, created_at DESC
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []SessionDetail
	index := map[string]int{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		index[s.ID] = len(res)
		res = append(res, SessionDetail{Session: s, Records: []Record{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}

	recRows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns("r.")+`
		FROM attendance_records r
		JOIN attendance_sessions s ON s.id = r.session_id
		WHERE s.class_id = $1
		ORDER BY r.recorded_at, r.id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer recRows.Close()
	for recRows.Next() {
		rec, err := scanRecord(recRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[rec.SessionID]; ok {
			res[i].Records = append(res[i].Records, rec)
		}
	}
	return res, recRows.Err()
}

func recordColumns(prefix string) string {
	return prefix + "id, " + prefix + "session_id, " + prefix + "student_id, " + prefix + "student_name, " +
		prefix + "status, " + prefix + "method, " + prefix + "recorded_at"
}

func scanRecord(sc interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.StudentName, &rec.Status, &rec.Method, &rec.RecordedAt)
	return rec, err
}

// ListRecords returns the records of one session.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns("")+`
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY recorded_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// InsertRecords writes a batch of records in one transaction.
func (r *Repository) InsertRecords(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, student_name, status, method, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.RecordedAt.IsZero() {
			rec.RecordedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.SessionID, rec.StudentID, rec.StudentName, rec.Status, rec.Method, rec.RecordedAt); err != nil {
			return fmt.Errorf("insert record for student %s: %w", rec.StudentID, err)
		}
	}
	return tx.Commit()
}

// UpdateRecord rewrites the record for (session, student).
func (r *Repository) UpdateRecord(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET status = $3, method = $4, student_name = $5, recorded_at = $6
		WHERE session_id = $1 AND student_id = $2
	`, rec.SessionID, rec.StudentID, rec.Status, rec.Method, rec.StudentName, rec.RecordedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %s/%s: %w", rec.SessionID, rec.StudentID, ErrNotFound)
	}
	return nil
}
