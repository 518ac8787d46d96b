package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// ErrInvalidInput wraps sign-up validation failures.
var ErrInvalidInput = errors.New("invalid input")

// SignupInput is the sign-up form.
type SignupInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email"`
	CollegeUID string `json:"college_uid" validate:"required,max=64"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
}

// Session is what a successful sign-up, login or refresh returns.
type Session struct {
	Teacher Teacher   `json:"teacher"`
	Tokens  TokenPair `json:"tokens"`
}

// Config holds token settings.
type Config struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service manages teacher accounts and tokens.
type Service struct {
	accounts Accounts
	cfg      Config
	now      func() time.Time
}

func NewService(accounts Accounts, cfg Config) *Service {
	return &Service{accounts: accounts, cfg: cfg, now: time.Now}
}

// Signup creates a teacher. Email and college uid must both be unused.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.CollegeUID = strings.TrimSpace(in.CollegeUID)
	if err := validate.Struct(in); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	t, err := s.accounts.CreateTeacher(ctx, Teacher{
		Name:         in.Name,
		Email:        in.Email,
		CollegeUID:   in.CollegeUID,
		PasswordHash: string(hash),
	})
	if err != nil {
		return Session{}, err
	}
	log.Printf("teacher %s signed up", t.CollegeUID)
	return s.issue(ctx, t)
}

// Login authenticates by college uid (or email) and password.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	t, err := s.accounts.FindTeacher(ctx, strings.TrimSpace(login))
	if err != nil {
		return Session{}, err
	}
	if t == nil || bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(ctx, *t)
}

// Refresh exchanges a refresh token for a new pair. Each refresh token works
// once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := Parse(refreshToken, s.cfg.SigningKey, s.cfg.Issuer, TypeRefresh)
	if err != nil || claims.ID == "" {
		return Session{}, ErrInvalidToken
	}
	teacherID, err := s.accounts.ConsumeRefresh(ctx, claims.ID, s.now())
	if err != nil {
		return Session{}, err
	}
	if teacherID == "" || teacherID != claims.Subject {
		return Session{}, ErrInvalidToken
	}
	t, err := s.accounts.GetTeacher(ctx, teacherID)
	if err != nil {
		return Session{}, err
	}
	if t == nil {
		return Session{}, ErrInvalidToken
	}
	return s.issue(ctx, *t)
}

func (s *Service) issue(ctx context.Context, t Teacher) (Session, error) {
	pair, err := Issue(t.ID, s.cfg.Issuer, s.cfg.SigningKey, s.now(), s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.accounts.SaveRefresh(ctx, pair.RefreshID, t.ID, pair.RefreshExp); err != nil {
		return Session{}, fmt.Errorf("save refresh token: %w", err)
	}
	return Session{Teacher: t, Tokens: pair}, nil
}
