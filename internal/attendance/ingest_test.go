package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartpresent/internal/csvio"
	"smartpresent/internal/rfidfeed"
)

type fakeFeed struct {
	scans []rfidfeed.Scan
	err   error
}

func (f fakeFeed) Fetch(context.Context) ([]rfidfeed.Scan, error) { return f.scans, f.err }

func TestScanUIDOverExistingAbsentRecord(t *testing.T) {
	for _, tc := range []struct {
		policy Policy
		want   Status
	}{
		{PolicyInsertOnce, StatusAbsent},
		{PolicyUpsert, StatusPresent},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			cls := seedClass(t, store, "Physics")
			svc := newTestService(t, store, tc.policy)
			res, err := svc.resolver.Resolve(ctx, cls.ID, "Ann Lee", "X1")
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}

			mustOpen(t, svc, cls.ID, "Optics")
			fin, err := svc.Finalize(ctx, cls.ID, "t")
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}

			scan, err := svc.ScanUID(ctx, cls.ID, "x1", "t")
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			if scan.Student.StudentID != res.Entry.StudentID || scan.Report.SessionID != fin.Session.ID {
				t.Fatalf("unexpected scan %+v", scan)
			}
			if len(store.sessions) != 1 || len(store.records) != 1 {
				t.Fatalf("want 1 session and 1 record, got %d/%d", len(store.sessions), len(store.records))
			}
			if store.records[0].Status != tc.want {
				t.Fatalf("persisted status %s, want %s", store.records[0].Status, tc.want)
			}
			board := mustBoard(t, svc, cls.ID)
			if !board.Students[0].Present {
				t.Fatalf("live mark must be present after a scan")
			}
		})
	}
}

func TestScanUIDUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	svc := newTestService(t, store, PolicyInsertOnce)
	mustResolve(t, svc.resolver, cls.ID, "Ann Lee", "X1")
	addStudents(t, svc, cls.ID, "No Card")

	_, err := svc.ScanUID(ctx, cls.ID, "ZZ", "t")
	var nf *UIDNotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrUIDNotFound) {
		t.Fatalf("want UIDNotFoundError, got %v", err)
	}
	if len(nf.Known) != 1 || nf.Known[0].UID != "X1" {
		t.Fatalf("known uids %+v", nf.Known)
	}
	if !IsInformational(err) {
		t.Fatalf("unknown uid should be informational")
	}
	if len(store.sessions) != 0 {
		t.Fatalf("unknown uid must not create a session")
	}
}

func TestSyncFeed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	feed := fakeFeed{scans: []rfidfeed.Scan{
		{UID: "x1", At: testNow.Add(-2 * time.Minute)},
		{UID: "X2", At: testNow.Add(-time.Hour)},
		{UID: "ZZ", At: testNow.Add(-time.Minute)},
		{UID: "X1", At: testNow.Add(-time.Minute)},
	}}
	svc := NewService(store, Options{Location: time.UTC, Now: func() time.Time { return testNow }, Feed: feed})
	ann := mustResolve(t, svc.resolver, cls.ID, "Ann", "X1")
	mustResolve(t, svc.resolver, cls.ID, "Bo", "X2")

	report, err := svc.SyncFeed(ctx, cls.ID, "t")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Matched != 2 || report.Inserted != 1 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Stats.Present != 1 || report.Stats.Total != 2 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if len(store.records) != 1 || store.records[0].StudentID != ann.Entry.StudentID || store.records[0].Method != MethodRFID {
		t.Fatalf("unexpected records %+v", store.records)
	}
}

func TestSyncFeedUnavailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")

	svc := newTestService(t, store, PolicyInsertOnce)
	if _, err := svc.SyncFeed(ctx, cls.ID, "t"); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("no feed: %v", err)
	}
	svc = NewService(store, Options{Feed: fakeFeed{err: errors.New("timeout")}})
	if _, err := svc.SyncFeed(ctx, cls.ID, "t"); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("failing feed: %v", err)
	}
}

func TestSyncFeedNoRecentScans(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	feed := fakeFeed{scans: []rfidfeed.Scan{{UID: "X1", At: testNow.Add(-time.Hour)}}}
	svc := NewService(store, Options{Location: time.UTC, Now: func() time.Time { return testNow }, Feed: feed})

	report, err := svc.SyncFeed(ctx, cls.ID, "t")
	if err != nil || report.Matched != 0 || len(store.sessions) != 0 {
		t.Fatalf("report %+v err %v sessions %d", report, err, len(store.sessions))
	}
}

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	svc := newTestService(t, store, PolicyInsertOnce)
	rows := []csvio.Row{
		{Line: 2, UID: "A1", FirstName: "Ann", LastName: "Lee", INTime: "09:01"},
		{Line: 3, UID: "", FirstName: "Ghost", LastName: "Row", INTime: "09:02"},
		{Line: 4, UID: "B2", FirstName: "Bo", LastName: "Chen"},
	}

	report, err := svc.ImportCSV(ctx, cls.ID, "t", rows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Created != 2 || report.Matched != 2 || report.Inserted != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Line != 3 {
		t.Fatalf("unexpected diagnostics %+v", report.Skipped)
	}
	if report.Stats.Present != 1 || report.Stats.Total != 2 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if len(store.sessions) != 1 || store.sessions[0].Topic != "CSV Import Session 9/25/2025" {
		t.Fatalf("unexpected sessions %+v", store.sessions)
	}

	again, err := svc.ImportCSV(ctx, cls.ID, "t", rows)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if again.Created != 0 || again.Inserted != 0 || again.SessionID != report.SessionID {
		t.Fatalf("reimport must reuse students and session: %+v", again)
	}
	if len(store.students) != 2 || len(store.records) != 2 {
		t.Fatalf("duplicates after reimport: %d students, %d records", len(store.students), len(store.records))
	}
}

func TestImportCSVEmpty(t *testing.T) {
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	svc := newTestService(t, store, PolicyInsertOnce)
	if _, err := svc.ImportCSV(context.Background(), cls.ID, "t", nil); !errors.Is(err, csvio.ErrEmpty) {
		t.Fatalf("want ErrEmpty, got %v", err)
	}
}

func TestLoadSample(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "CSE-AI")
	svc := newTestService(t, store, PolicyInsertOnce)

	report, err := svc.LoadSample(ctx, cls.ID, "t")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if report.Created != len(SampleRows) || report.Stats.Present != len(SampleRows) {
		t.Fatalf("unexpected report %+v", report)
	}
	for _, r := range store.records {
		if r.Method != MethodSample {
			t.Fatalf("method %s", r.Method)
		}
	}
	board := mustBoard(t, svc, cls.ID)
	if board.Students[0].Name != "Kanwar Aaryaman" {
		t.Fatalf("first sample student %q", board.Students[0].Name)
	}
}

func TestSupersedeIgnoresUnenrolled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	svc := newTestService(t, store, PolicyInsertOnce)

	report, err := svc.Supersede(ctx, cls.ID, SourceRFID, "t", []Evidence{{StudentID: "ghost", Present: true, Method: MethodRFID}})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if len(report.Skipped) != 1 || len(store.sessions) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
