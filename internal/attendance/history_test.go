package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sampleHistory() []SessionDetail {
	day := func(d int) time.Time { return time.Date(2025, 9, d, 9, 0, 0, 0, time.UTC) }
	return []SessionDetail{
		{Session: Session{ID: "s2", SessionDate: day(20), Topic: "Waves"}, Records: []Record{
			{StudentID: "a", StudentName: "Ann", Status: StatusPresent, Method: MethodRFID},
			{StudentID: "b", StudentName: "Bo", Status: StatusAbsent, Method: MethodManual},
		}},
		{Session: Session{ID: "s1", SessionDate: day(1), Topic: "Optics"}, Records: []Record{
			{StudentID: "a", StudentName: "Ann", Status: StatusPresent, Method: MethodManual},
			{StudentID: "b", StudentName: "Bo", Status: StatusPresent, Method: MethodManual},
			{StudentID: "gone", StudentName: "Gone", Status: StatusAbsent, Method: MethodManual},
		}},
	}
}

func TestSince(t *testing.T) {
	h := sampleHistory()
	if got := Since(h, time.Time{}); len(got) != 2 {
		t.Fatalf("zero cutoff must keep all, got %d", len(got))
	}
	got := Since(h, time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || got[0].ID != "s2" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleHistory(), 2)
	if sum.TotalSessions != 2 || sum.TotalStudents != 2 || sum.OverallRate != 60 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if s := Summarize(nil, 0); s.OverallRate != 0 {
		t.Fatalf("empty summary %+v", s)
	}
}

func TestTalliesIgnoreUnrosteredStudents(t *testing.T) {
	roster := []RosterEntry{{StudentID: "a", Name: "Ann"}, {StudentID: "b", Name: "Bo"}}
	got := Tallies(roster, sampleHistory())
	if len(got) != 2 {
		t.Fatalf("want 2 tallies, got %d", len(got))
	}
	if got[0].Present != 2 || got[0].Absent != 0 || got[1].Present != 1 || got[1].Absent != 1 {
		t.Fatalf("unexpected tallies %+v", got)
	}
}

func TestExportRows(t *testing.T) {
	rows := ExportRows(sampleHistory())
	if len(rows) != 5 {
		t.Fatalf("want 5 rows, got %d", len(rows))
	}
	if rows[0].Date != "2025-09-20T09:00:00Z" || rows[0].Method != "rfid" || rows[0].SessionID != "s2" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
}

func TestClassCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(t, store, PolicyInsertOnce)

	if _, err := svc.CreateClass(ctx, Class{Name: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank name: %v", err)
	}
	cls, err := svc.CreateClass(ctx, Class{Name: " Physics ", TeacherID: "t1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cls.Name != "Physics" {
		t.Fatalf("name not trimmed: %q", cls.Name)
	}
	if _, err := svc.CreateClass(ctx, Class{Name: "Maths", TeacherID: "t2"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mine, err := svc.ListClasses(ctx, "t1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != cls.ID {
		t.Fatalf("unexpected classes %+v", mine)
	}

	addStudents(t, svc, cls.ID, "Ann")
	mustOpen(t, svc, cls.ID, "Optics")
	mustFinalize(t, svc, cls.ID, "t1")
	hist, err := svc.History(ctx, cls.ID)
	if err != nil || len(hist) != 1 || hist[0].Records != 1 || hist[0].Present != 0 {
		t.Fatalf("history %+v err %v", hist, err)
	}

	if err := svc.DeleteClass(ctx, cls.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Board(ctx, cls.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("board of deleted class: %v", err)
	}
	if len(store.records) != 0 || len(store.sessions) != 0 {
		t.Fatalf("delete must cascade")
	}
	if err := svc.DeleteClass(ctx, cls.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
