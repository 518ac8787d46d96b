package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartpresent/internal/attendance"
	"smartpresent/internal/metrics"
	"smartpresent/internal/queue"
)

// Texts shown in place of a model answer.
const (
	Pending      = "Generating insights..."
	InsightError = "Failed to generate AI insights."
	AskError     = "Error fetching answer. Please check your API key or quota."
)

const smartBotSystem = "You are SmartBot, a helpful assistant for teachers analyzing attendance data. " +
	"Use the provided student attendance data to answer questions with names, percentages, and insights."

// ErrNoQuestion is returned by Ask for a blank question.
var ErrNoQuestion = errors.New("question is required")

// Completer produces a chat completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Source reads class attendance.
type Source interface {
	Roster(ctx context.Context, classID string) ([]attendance.RosterEntry, error)
	Sessions(ctx context.Context, classID string) ([]attendance.SessionDetail, error)
}

// Insight is a generated summary of a class's attendance.
type Insight struct {
	ClassID     string    `json:"class_id"`
	Text        string    `json:"text"`
	Failed      bool      `json:"failed,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Bar is one student's present/absent count.
type Bar struct {
	Name    string `json:"name"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
}

// Analytics is the class dashboard payload.
type Analytics struct {
	ClassID     string     `json:"class_id"`
	Bars        []Bar      `json:"bars"`
	Present     int        `json:"present"`
	Absent      int        `json:"absent"`
	Insight     string     `json:"insight"`
	Pending     bool       `json:"pending"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// Service builds analytics and asks the model about a class.
type Service struct {
	source Source
	ai     Completer
	cache  Cache
	now    func() time.Time
}

func NewService(source Source, ai Completer, cache Cache) *Service {
	return &Service{source: source, ai: ai, cache: cache, now: time.Now}
}

func (s *Service) bars(ctx context.Context, classID string) ([]Bar, int, error) {
	roster, err := s.source.Roster(ctx, classID)
	if err != nil {
		return nil, 0, err
	}
	sessions, err := s.source.Sessions(ctx, classID)
	if err != nil {
		return nil, 0, err
	}
	tallies := attendance.Tallies(roster, sessions)
	bars := make([]Bar, 0, len(tallies))
	for _, t := range tallies {
		bars = append(bars, Bar{Name: t.Name, Present: t.Present, Absent: t.Absent})
	}
	return bars, len(sessions), nil
}

// Prompt renders the insight request for the given bars.
func Prompt(bars []Bar) string {
	raw, _ := json.Marshal(bars)
	var b strings.Builder
	b.WriteString("Analyze this class attendance data:\n")
	b.Write(raw)
	b.WriteString("\n\nProvide:\n")
	b.WriteString("- Students who may need reminders (attendance < 70%)\n")
	b.WriteString("- Students with excellent attendance (>90%)\n")
	b.WriteString("- Overall class performance insights\n")
	b.WriteString("- Any unique patterns you detect\n")
	b.WriteString("Keep it concise and helpful for a teacher.")
	return b.String()
}

// Refresh regenerates and caches the insight of a class. When the model call
// fails the cached text is InsightError and the error is returned.
func (s *Service) Refresh(ctx context.Context, classID string) (Insight, error) {
	bars, sessions, err := s.bars(ctx, classID)
	if err != nil {
		return Insight{}, err
	}
	if sessions == 0 {
		return Insight{}, nil
	}

	start := time.Now()
	text, err := s.ai.Complete(ctx, "", Prompt(bars))
	metrics.InsightLatency.WithLabelValues("insight").Observe(time.Since(start).Seconds())

	in := Insight{ClassID: classID, Text: text, GeneratedAt: s.now().UTC()}
	if err != nil {
		log.Printf("insight for class %s failed: %v", classID, err)
		metrics.Insights.WithLabelValues("insight", "failed").Inc()
		in.Text = InsightError
		in.Failed = true
	} else {
		metrics.Insights.WithLabelValues("insight", "ok").Inc()
	}
	if cerr := s.cache.Set(ctx, in); cerr != nil {
		log.Printf("cache insight for class %s: %v", classID, cerr)
	}
	if err != nil {
		return in, fmt.Errorf("generate insight: %w", err)
	}
	return in, nil
}

// Analytics returns bars, pie totals and the cached insight. A class with
// sessions but no cached insight is reported as pending.
func (s *Service) Analytics(ctx context.Context, classID string) (Analytics, error) {
	bars, sessions, err := s.bars(ctx, classID)
	if err != nil {
		return Analytics{}, err
	}
	out := Analytics{ClassID: classID, Bars: bars}
	for _, b := range bars {
		out.Present += b.Present
		out.Absent += b.Absent
	}
	if sessions == 0 {
		return out, nil
	}

	cached, err := s.cache.Get(ctx, classID)
	if err != nil {
		log.Printf("read cached insight for class %s: %v", classID, err)
	}
	if cached == nil {
		out.Insight = Pending
		out.Pending = true
		return out, nil
	}
	metrics.Insights.WithLabelValues("insight", "cached").Inc()
	out.Insight = cached.Text
	at := cached.GeneratedAt
	out.GeneratedAt = &at
	return out, nil
}

// Ask answers a teacher's question over the class's session history.
func (s *Service) Ask(ctx context.Context, classID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrNoQuestion
	}
	sessions, err := s.source.Sessions(ctx, classID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return "", err
	}

	start := time.Now()
	answer, err := s.ai.Complete(ctx, smartBotSystem, fmt.Sprintf("Here is the attendance data: %s\n\nQuestion: %s", data, question))
	metrics.InsightLatency.WithLabelValues("ask").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("smartbot for class %s failed: %v", classID, err)
		metrics.Insights.WithLabelValues("ask", "failed").Inc()
		return AskError, fmt.Errorf("ask: %w", err)
	}
	metrics.Insights.WithLabelValues("ask", "ok").Inc()
	return answer, nil
}

// Consume refreshes insights for jobs read from q until ctx is done.
func (s *Service) Consume(ctx context.Context, q queue.Queue) error {
	jobs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for job := range jobs {
		if job.Kind != queue.JobRefreshInsight {
			log.Printf("insight worker: ignoring job kind %q", job.Kind)
			continue
		}
		if _, err := s.Refresh(ctx, job.ClassID); err != nil {
			log.Printf("insight worker: class %s: %v", job.ClassID, err)
			continue
		}
		log.Printf("insight refreshed for class %s (queued %s ago)", job.ClassID, time.Since(job.Enqueued).Round(time.Millisecond))
	}
	return ctx.Err()
}
