package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicate          = errors.New("user with this email or college uid already exists")
	ErrInvalidCredentials = errors.New("invalid college uid or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
)

// Teacher is an account owning classes.
type Teacher struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CollegeUID   string    `json:"college_uid"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Accounts persists teachers and outstanding refresh tokens.
type Accounts interface {
	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	// FindTeacher looks a teacher up by college uid or email; nil when absent.
	FindTeacher(ctx context.Context, login string) (*Teacher, error)
	GetTeacher(ctx context.Context, id string) (*Teacher, error)
	SaveRefresh(ctx context.Context, id, teacherID string, expires time.Time) error
	// ConsumeRefresh deletes a refresh token and returns its teacher; "" when
	// the token is unknown or expired.
	ConsumeRefresh(ctx context.Context, id string, now time.Time) (string, error)
}

// PGAccounts is the Postgres implementation of Accounts.
type PGAccounts struct {
	db *sql.DB
}

func NewPGAccounts(db *sql.DB) *PGAccounts {
	return &PGAccounts{db: db}
}

func (a *PGAccounts) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := a.db.QueryRowContext(ctx, `
INSERT INTO teachers (id, name, email, college_uid, password_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`, t.ID, t.Name, t.Email, t.CollegeUID, t.PasswordHash).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Teacher{}, ErrDuplicate
		}
		return Teacher{}, err
	}
	return t, nil
}

const teacherColumns = `id, name, email, college_uid, password_hash, created_at`

func scanTeacher(row *sql.Row) (*Teacher, error) {
	var t Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.CollegeUID, &t.PasswordHash, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (a *PGAccounts) FindTeacher(ctx context.Context, login string) (*Teacher, error) {
	return scanTeacher(a.db.QueryRowContext(ctx, `
SELECT `+teacherColumns+` FROM teachers
WHERE college_uid = $1 OR LOWER(email) = LOWER($1)
LIMIT 1`, login))
}

func (a *PGAccounts) GetTeacher(ctx context.Context, id string) (*Teacher, error) {
	return scanTeacher(a.db.QueryRowContext(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id))
}

func (a *PGAccounts) SaveRefresh(ctx context.Context, id, teacherID string, expires time.Time) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO refresh_tokens (id, teacher_id, expires_at) VALUES ($1, $2, $3)`, id, teacherID, expires)
	return err
}

func (a *PGAccounts) ConsumeRefresh(ctx context.Context, id string, now time.Time) (string, error) {
	var teacherID string
	err := a.db.QueryRowContext(ctx, `
DELETE FROM refresh_tokens WHERE id = $1 AND expires_at > $2
RETURNING teacher_id`, id, now).Scan(&teacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return teacherID, err
}

// MemoryAccounts is a process-local Accounts for development and tests.
type MemoryAccounts struct {
	mu       sync.Mutex
	teachers []Teacher
	refresh  map[string]refreshEntry
}

type refreshEntry struct {
	teacherID string
	expires   time.Time
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{refresh: make(map[string]refreshEntry)}
}

func (m *MemoryAccounts) CreateTeacher(_ context.Context, t Teacher) (Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.teachers {
		if strings.EqualFold(existing.Email, t.Email) || existing.CollegeUID == t.CollegeUID {
			return Teacher{}, ErrDuplicate
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	m.teachers = append(m.teachers, t)
	return t, nil
}

func (m *MemoryAccounts) FindTeacher(_ context.Context, login string) (*Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teachers {
		if t.CollegeUID == login || strings.EqualFold(t.Email, login) {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryAccounts) GetTeacher(_ context.Context, id string) (*Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.teachers {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryAccounts) SaveRefresh(_ context.Context, id, teacherID string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[id] = refreshEntry{teacherID: teacherID, expires: expires}
	return nil
}

func (m *MemoryAccounts) ConsumeRefresh(_ context.Context, id string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.refresh[id]
	if !ok {
		return "", nil
	}
	delete(m.refresh, id)
	if !e.expires.After(now) {
		return "", nil
	}
	return e.teacherID, nil
}
