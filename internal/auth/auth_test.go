package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testAuth() *Service {
	return NewService(NewMemoryAccounts(), Config{
		Issuer:     "smartpresent",
		SigningKey: "test-key",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
}

var ann = SignupInput{Name: "Ann Lee", Email: "ann@college.edu", CollegeUID: "T-100", Password: "secret123"}

func TestSignupLogin(t *testing.T) {
	ctx := context.Background()
	svc := testAuth()

	sess, err := svc.Signup(ctx, ann)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if sess.Teacher.PasswordHash == ann.Password || sess.Tokens.AccessToken == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := svc.Login(ctx, "T-100", "secret123"); err != nil {
		t.Fatalf("login by uid: %v", err)
	}
	if _, err := svc.Login(ctx, "ANN@college.edu", "secret123"); err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if _, err := svc.Login(ctx, "T-100", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := svc.Login(ctx, "T-999", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestSignupRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := testAuth()
	if _, err := svc.Signup(ctx, ann); err != nil {
		t.Fatalf("signup: %v", err)
	}

	sameEmail := ann
	sameEmail.CollegeUID = "T-200"
	if _, err := svc.Signup(ctx, sameEmail); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same email: %v", err)
	}
	sameUID := ann
	sameUID.Email = "other@college.edu"
	if _, err := svc.Signup(ctx, sameUID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same uid: %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	bad := ann
	bad.Email = "not-an-email"
	if _, err := testAuth().Signup(context.Background(), bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	svc := testAuth()
	sess, err := svc.Signup(ctx, ann)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	next, err := svc.Refresh(ctx, sess.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Teacher.ID != sess.Teacher.ID {
		t.Fatalf("teacher changed")
	}
	if _, err := svc.Refresh(ctx, sess.Tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reuse of refresh token: %v", err)
	}
	if _, err := svc.Refresh(ctx, sess.Tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token used as refresh: %v", err)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	pair, err := Issue("t1", "smartpresent", "k1", time.Now(), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "k2", "smartpresent", TypeAccess); err == nil {
		t.Fatal("wrong key accepted")
	}
	if _, err := Parse(pair.AccessToken, "k1", "other", TypeAccess); err == nil {
		t.Fatal("wrong issuer accepted")
	}
	claims, err := Parse(pair.AccessToken, "k1", "smartpresent", TypeAccess)
	if err != nil || claims.Subject != "t1" || claims.Role != RoleTeacher {
		t.Fatalf("claims %+v, %v", claims, err)
	}
}

func TestTeacherAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", TeacherAuth("k", "smartpresent"), func(c *gin.Context) {
		c.String(http.StatusOK, TeacherID(c))
	})
	pair, _ := Issue("t1", "smartpresent", "k", time.Now(), time.Minute, time.Hour)

	for _, tc := range []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer garbage", http.StatusUnauthorized},
		{"Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"Bearer " + pair.AccessToken, http.StatusOK},
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("header %q: code %d, want %d", tc.header, w.Code, tc.code)
		}
		if tc.code == http.StatusOK && w.Body.String() != "t1" {
			t.Fatalf("teacher id %q", w.Body.String())
		}
	}
}
