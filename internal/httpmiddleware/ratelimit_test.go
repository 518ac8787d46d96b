package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2025, 9, 25, 10, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		if got, _ := l.Allow(ctx, "ip"); got != want {
			t.Fatalf("call %d: got %v, want %v", i, got, want)
		}
	}
	if got, _ := l.Allow(ctx, "other"); !got {
		t.Fatal("keys must be independent")
	}
	now = now.Add(time.Second)
	if got, _ := l.Allow(ctx, "ip"); !got {
		t.Fatal("bucket did not refill")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		name    string
		limiter Limiter
		codes   []int
	}{
		{"bucket", NewTokenBucket(1, 1), []int{http.StatusOK, http.StatusTooManyRequests}},
		{"fail open", failingLimiter{}, []int{http.StatusOK, http.StatusOK}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", RateLimit(tc.limiter), func(c *gin.Context) { c.Status(http.StatusOK) })
			for i, want := range tc.codes {
				w := httptest.NewRecorder()
				r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
				if w.Code != want {
					t.Fatalf("request %d: code %d, want %d", i, w.Code, want)
				}
			}
		})
	}
}
