package attendance

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Policy decides what happens to a persisted record when later evidence for
// the same (session, student) arrives.
type Policy string

const (
	// PolicyInsertOnce keeps the first persisted decision; only the live
	// marks follow later evidence.
	PolicyInsertOnce Policy = "insert-once"
	// PolicyUpsert rewrites the persisted status to the latest evidence.
	PolicyUpsert Policy = "upsert"
)

// ParsePolicy accepts "insert-once" or "upsert"; empty means insert-once.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyInsertOnce:
		return PolicyInsertOnce, nil
	case PolicyUpsert:
		return PolicyUpsert, nil
	}
	return "", fmt.Errorf("unknown reconcile policy %q", s)
}

// Plan is the result of merging evidence into a session.
type Plan struct {
	Insert []Record
	Update []Record
	// Patch holds the latest present flag per student for the live marks.
	Patch map[string]bool
}

// Merge folds batch into the existing records of sessionID. At most one row is
// planned per student; an existing row is never duplicated.
func Merge(sessionID string, existing []Record, batch []Evidence, policy Policy, now time.Time) Plan {
	plan := Plan{Patch: make(map[string]bool, len(batch))}

	persisted := make(map[string]Record, len(existing))
	for _, r := range existing {
		if _, ok := persisted[r.StudentID]; !ok {
			persisted[r.StudentID] = r
		}
	}
	inserts := map[string]int{}
	updates := map[string]int{}

	for _, ev := range batch {
		plan.Patch[ev.StudentID] = ev.Present
		status := StatusFor(ev.Present)

		if i, ok := inserts[ev.StudentID]; ok {
			if policy == PolicyUpsert {
				plan.Insert[i].Status = status
				plan.Insert[i].Method = ev.Method
			}
			continue
		}
		if i, ok := updates[ev.StudentID]; ok {
			plan.Update[i].Status = status
			plan.Update[i].Method = ev.Method
			continue
		}
		if cur, ok := persisted[ev.StudentID]; ok {
			if policy != PolicyUpsert || cur.Status == status {
				continue
			}
			cur.Status = status
			cur.Method = ev.Method
			cur.StudentName = ev.StudentName
			cur.RecordedAt = now
			updates[ev.StudentID] = len(plan.Update)
			plan.Update = append(plan.Update, cur)
			continue
		}

		inserts[ev.StudentID] = len(plan.Insert)
		plan.Insert = append(plan.Insert, Record{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			StudentID:   ev.StudentID,
			StudentName: ev.StudentName,
			Status:      status,
			Method:      ev.Method,
			RecordedAt:  now,
		})
	}
	return plan
}

// Stats summarizes the live marks of a class.
type Stats struct {
	Present int `json:"present"`
	Total   int `json:"total"`
	// Rate is the rounded present share in percent; 0 for an empty class.
	Rate int `json:"attendance_rate"`
}

// ComputeStats counts present marks against the roster size.
func ComputeStats(marks map[string]bool, total int) Stats {
	present := 0
	for _, p := range marks {
		if p {
			present++
		}
	}
	s := Stats{Present: present, Total: total}
	if total > 0 {
		s.Rate = int(math.Round(float64(present) / float64(total) * 100))
	}
	return s
}
