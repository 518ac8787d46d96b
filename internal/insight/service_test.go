package insight

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smartpresent/internal/attendance"
	"smartpresent/internal/queue"
)

type fakeSource struct {
	roster   []attendance.RosterEntry
	sessions []attendance.SessionDetail
}

func (f fakeSource) Roster(context.Context, string) ([]attendance.RosterEntry, error) {
	return f.roster, nil
}

func (f fakeSource) Sessions(context.Context, string) ([]attendance.SessionDetail, error) {
	return f.sessions, nil
}

type fakeAI struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeAI) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func classData() fakeSource {
	return fakeSource{
		roster: []attendance.RosterEntry{{StudentID: "a", Name: "Ann"}, {StudentID: "b", Name: "Bo"}},
		sessions: []attendance.SessionDetail{{
			Session: attendance.Session{ID: "s1", Topic: "Optics"},
			Records: []attendance.Record{
				{StudentID: "a", Status: attendance.StatusPresent},
				{StudentID: "b", Status: attendance.StatusAbsent},
			},
		}},
	}
}

func TestAnalyticsPendingUntilRefreshed(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{answer: "Bo needs a reminder."}
	svc := NewService(classData(), ai, NewMemoryCache())

	a, err := svc.Analytics(ctx, "c1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if !a.Pending || a.Insight != Pending || a.Present != 1 || a.Absent != 1 || len(a.Bars) != 2 {
		t.Fatalf("unexpected analytics %+v", a)
	}

	if _, err := svc.Refresh(ctx, "c1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(ai.prompts) != 1 || !strings.Contains(ai.prompts[0], `{"name":"Bo","present":0,"absent":1}`) {
		t.Fatalf("prompt %q", ai.prompts)
	}
	if !strings.Contains(ai.prompts[0], "attendance < 70%") {
		t.Fatalf("prompt missing thresholds")
	}

	if a, err = svc.Analytics(ctx, "c1"); err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.Pending || a.Insight != "Bo needs a reminder." || a.GeneratedAt == nil {
		t.Fatalf("unexpected analytics %+v", a)
	}
}

func TestRefreshFailureCachesPlaceholder(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	svc := NewService(classData(), &fakeAI{err: errors.New("quota")}, cache)

	in, err := svc.Refresh(ctx, "c1")
	if err == nil || in.Text != InsightError || !in.Failed {
		t.Fatalf("got %+v, %v", in, err)
	}
	cached, err := cache.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if cached == nil || cached.Text != InsightError {
		t.Fatalf("cached %+v", cached)
	}
}

func TestRefreshWithoutSessionsSkipsModel(t *testing.T) {
	ai := &fakeAI{answer: "x"}
	svc := NewService(fakeSource{}, ai, NewMemoryCache())
	if _, err := svc.Refresh(context.Background(), "c1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(ai.prompts) != 0 {
		t.Fatal("model called without data")
	}
	a, err := svc.Analytics(context.Background(), "c1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.Pending {
		t.Fatal("empty class should not be pending")
	}
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAI{answer: "Ann has 100%."}
	svc := NewService(classData(), ai, NewMemoryCache())

	if _, err := svc.Ask(ctx, "c1", "  "); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("blank question: %v", err)
	}
	answer, err := svc.Ask(ctx, "c1", "Who is best?")
	if err != nil || answer != "Ann has 100%." {
		t.Fatalf("got %q, %v", answer, err)
	}
	if !strings.HasSuffix(ai.prompts[0], "Question: Who is best?") || !strings.Contains(ai.prompts[0], `"attendance_records"`) {
		t.Fatalf("prompt %q", ai.prompts[0])
	}

	ai.err = errors.New("down")
	answer, err = svc.Ask(ctx, "c1", "Who is best?")
	if err == nil || answer != AskError {
		t.Fatalf("got %q, %v", answer, err)
	}
}

func TestConsumeRefreshesQueuedClasses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewMemoryCache()
	svc := NewService(classData(), &fakeAI{answer: "ok"}, cache)
	q := queue.NewInMemory(4)
	for _, job := range []queue.Job{{Kind: "other", ClassID: "c0"}, {Kind: queue.JobRefreshInsight, ClassID: "c1"}} {
		if err := q.Publish(ctx, job); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- svc.Consume(ctx, q) }()

	deadline := time.After(2 * time.Second)
	for {
		if in, _ := cache.Get(ctx, "c1"); in != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("insight was not refreshed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("consume returned %v", err)
	}
	if in, _ := cache.Get(ctx, "c0"); in != nil {
		t.Fatal("unknown job kind must be ignored")
	}
}
