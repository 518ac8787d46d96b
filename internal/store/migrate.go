package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS teachers (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	college_uid   TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_teachers_email ON teachers (LOWER(email));

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         TEXT PRIMARY KEY,
	teacher_id TEXT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	code       TEXT NOT NULL DEFAULT '',
	teacher_id TEXT REFERENCES teachers(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_classes_teacher ON classes (teacher_id);

CREATE TABLE IF NOT EXISTS students (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	uid        TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_students_uid ON students (UPPER(TRIM(uid)));

CREATE TABLE IF NOT EXISTS enrollments (
	class_id    TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	student_id  TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	roll_number TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (class_id, student_id)
);

CREATE TABLE IF NOT EXISTS attendance_sessions (
	id           TEXT PRIMARY KEY,
	class_id     TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	session_date TIMESTAMPTZ NOT NULL,
	topic        TEXT NOT NULL,
	created_by   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_class_date ON attendance_sessions (class_id, session_date);

CREATE TABLE IF NOT EXISTS attendance_records (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
	student_id   TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	student_name TEXT NOT NULL,
	status       TEXT NOT NULL CHECK (status IN ('present', 'absent', 'late')),
	method       TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_records_session_student ON attendance_records (session_id, student_id);
`

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
