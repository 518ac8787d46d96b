package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"smartpresent/internal/csvio"
	"smartpresent/internal/metrics"
)

// Source labels used for implicitly created sessions.
const (
	SourceRFID   = "RFID"
	SourceCSV    = "CSV Import"
	SourceSample = "Sample Data"
)

// Diagnostic explains why one evidence item was dropped.
type Diagnostic struct {
	Line   int    `json:"line,omitempty"`
	UID    string `json:"uid,omitempty"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Source    string       `json:"source"`
	SessionID string       `json:"session_id,omitempty"`
	Matched   int          `json:"matched"`
	Created   int          `json:"created"`
	Inserted  int          `json:"inserted"`
	Updated   int          `json:"updated"`
	Skipped   []Diagnostic `json:"skipped,omitempty"`
	Stats     Stats        `json:"stats"`
}

func (r *IngestReport) skip(d Diagnostic) {
	r.Skipped = append(r.Skipped, d)
	metrics.IngestSkipped.WithLabelValues(r.Source).Inc()
}

func (r *IngestReport) add(p Plan) {
	r.Inserted += len(p.Insert)
	r.Updated += len(p.Update)
}

// event is the single notification for an ingestion run; empty when nothing
// was written.
func (r *IngestReport) event(classID string) Event {
	if r.SessionID == "" || r.Inserted+r.Updated == 0 {
		return Event{}
	}
	return Event{Kind: EventRecordsChanged, ClassID: classID, SessionID: r.SessionID}
}

// UIDNotFoundError is returned when a typed UID matches no student. Known
// lists the students of the class that do carry a UID.
type UIDNotFoundError struct {
	UID   string
	Known []RosterEntry
}

func (e *UIDNotFoundError) Error() string {
	return fmt.Sprintf("no student found with uid %q", e.UID)
}

func (e *UIDNotFoundError) Unwrap() error { return ErrUIDNotFound }

// Supersede attaches evidence to today's session, creating it if needed, and
// folds it into both the persisted records and the live marks. Finalized or
// not, no second session is created for the day. It serves evidence that is
// already resolved to student ids; ScanUID, SyncFeed and ImportCSV resolve
// their own input and share the same path.
func (s *Service) Supersede(ctx context.Context, classID, source, createdBy string, batch []Evidence) (report IngestReport, err error) {
	var evt Event
	defer s.emit(&evt)
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return IngestReport{}, err
	}
	defer b.mu.Unlock()

	report = IngestReport{Source: source}
	for _, ev := range batch {
		if _, ok := b.entry(ev.StudentID); !ok {
			report.skip(Diagnostic{Reason: fmt.Sprintf("student %s is not enrolled", ev.StudentID)})
			continue
		}
		report.Matched++
	}
	if report.Matched == 0 {
		report.Stats = ComputeStats(b.marks, len(b.roster))
		return report, nil
	}
	err = s.supersede(ctx, b, classID, source, createdBy, batch, &report)
	report.Stats = ComputeStats(b.marks, len(b.roster))
	evt = report.event(classID)
	return report, err
}

func (s *Service) supersede(ctx context.Context, b *board, classID, source, createdBy string, batch []Evidence, report *IngestReport) error {
	enrolled := batch[:0:0]
	for _, ev := range batch {
		if _, ok := b.entry(ev.StudentID); ok {
			enrolled = append(enrolled, ev)
		}
	}
	if len(enrolled) == 0 {
		return nil
	}
	sess, err := s.ensureToday(ctx, classID, source, createdBy)
	if err != nil {
		return err
	}
	report.SessionID = sess.ID

	plan, err := s.apply(ctx, sess.ID, enrolled)
	report.add(plan)
	if err != nil {
		return err
	}
	for id, present := range plan.Patch {
		b.marks[id] = present
	}
	return nil
}

// ScanResult is the outcome of a typed UID entry.
type ScanResult struct {
	Student RosterEntry  `json:"student"`
	Report  IngestReport `json:"report"`
}

// ScanUID marks the student carrying uid present in today's session.
func (s *Service) ScanUID(ctx context.Context, classID, uid, createdBy string) (ScanResult, error) {
	if strings.TrimSpace(uid) == "" {
		return ScanResult{}, validationError("uid is required")
	}
	var evt Event
	defer s.emit(&evt)
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return ScanResult{}, err
	}
	defer b.mu.Unlock()

	entry, ok := MatchUID(b.roster, uid)
	if !ok {
		nf := &UIDNotFoundError{UID: uid}
		for _, e := range b.roster {
			if e.UID != "" {
				nf.Known = append(nf.Known, e)
			}
		}
		return ScanResult{}, nf
	}

	report := IngestReport{Source: SourceRFID, Matched: 1}
	err = s.supersede(ctx, b, classID, SourceRFID, createdBy, []Evidence{ScanEvidence(entry, MethodManual)}, &report)
	report.Stats = ComputeStats(b.marks, len(b.roster))
	evt = report.event(classID)
	if err != nil {
		return ScanResult{Student: entry, Report: report}, err
	}
	return ScanResult{Student: entry, Report: report}, nil
}

// SyncFeed pulls the RFID scan log and marks every student seen within the
// scan window present. No recent scans is not an error.
func (s *Service) SyncFeed(ctx context.Context, classID, createdBy string) (IngestReport, error) {
	if s.feed == nil {
		return IngestReport{}, fmt.Errorf("%w: feed not configured", ErrFeedUnavailable)
	}
	var evt Event
	defer s.emit(&evt)
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return IngestReport{}, err
	}
	defer b.mu.Unlock()

	scans, err := s.feed.Fetch(ctx)
	if err != nil {
		log.Printf("rfid feed fetch failed: %v", err)
		return IngestReport{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	report := IngestReport{Source: SourceRFID}
	var batch []Evidence
	for _, scan := range RecentScans(scans, s.now(), s.window) {
		entry, ok := MatchUID(b.roster, scan.UID)
		if !ok {
			report.skip(Diagnostic{UID: scan.UID, Reason: "unknown uid"})
			continue
		}
		report.Matched++
		batch = append(batch, ScanEvidence(entry, MethodRFID))
	}
	if len(batch) > 0 {
		err = s.supersede(ctx, b, classID, SourceRFID, createdBy, batch, &report)
	}
	report.Stats = ComputeStats(b.marks, len(b.roster))
	evt = report.event(classID)
	return report, err
}

// ImportCSV resolves each row to a student, creating unknown ones, and writes
// its status into today's session. Rows are processed one at a time; a failing
// row is reported and skipped.
func (s *Service) ImportCSV(ctx context.Context, classID, createdBy string, rows []csvio.Row) (IngestReport, error) {
	if len(rows) == 0 {
		return IngestReport{}, csvio.ErrEmpty
	}
	return s.ingestRows(ctx, classID, createdBy, rows, MethodCSV, SourceCSV)
}

// SampleRows are the demo students loaded by LoadSample.
var SampleRows = []csvio.Row{
	{UID: "89C39994", FirstName: "Kanwar", LastName: "Aaryaman", Class: "CSE-AI", INTime: "2025-09-25 23:40:56"},
	{UID: "99AC9B94", FirstName: "Sameer", LastName: "Kumar", Class: "CSE-AI", INTime: "2025-09-25 23:43:55"},
	{UID: "A7F3C215", FirstName: "Saranjeet", LastName: "Singh", Class: "CSE-AI", INTime: "2025-09-25 23:45:12"},
}

// LoadSample replays SampleRows into the class.
func (s *Service) LoadSample(ctx context.Context, classID, createdBy string) (IngestReport, error) {
	return s.ingestRows(ctx, classID, createdBy, SampleRows, MethodSample, SourceSample)
}

// ingestRows writes rows one at a time and notifies subscribers once for the
// whole run.
func (s *Service) ingestRows(ctx context.Context, classID, createdBy string, rows []csvio.Row, method Method, source string) (report IngestReport, err error) {
	var evt Event
	defer s.emit(&evt)
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return IngestReport{}, err
	}
	defer b.mu.Unlock()
	defer func() { evt = report.event(classID) }()

	report = IngestReport{Source: source}
	for i, row := range rows {
		line := row.Line
		if line == 0 {
			line = i + 2
		}
		in, err := NormalizeRow(row)
		if err != nil {
			report.skip(Diagnostic{Line: line, UID: row.UID, Reason: err.Error()})
			continue
		}

		res, err := s.resolver.Resolve(ctx, classID, in.Name, in.UID)
		if err != nil {
			log.Printf("%s row %d: resolve %q failed: %v", source, line, in.UID, err)
			report.skip(Diagnostic{Line: line, UID: in.UID, Reason: err.Error()})
			continue
		}
		s.admitAll(b, res)
		if res.Created {
			report.Created++
		}
		report.Matched++

		ev := Evidence{StudentID: res.Entry.StudentID, StudentName: res.Entry.Name, Present: in.Present, Method: method}
		if err := s.supersede(ctx, b, classID, source, createdBy, []Evidence{ev}, &report); err != nil {
			log.Printf("%s row %d: write attendance failed: %v", source, line, err)
			report.skip(Diagnostic{Line: line, UID: in.UID, Reason: err.Error()})
			if report.SessionID == "" {
				report.Stats = ComputeStats(b.marks, len(b.roster))
				return report, err
			}
		}
	}
	report.Stats = ComputeStats(b.marks, len(b.roster))
	return report, nil
}

// IsInformational reports whether err is an expected outcome rather than a
// failure (unknown UID, empty import).
func IsInformational(err error) bool {
	return errors.Is(err, ErrUIDNotFound) || errors.Is(err, csvio.ErrEmpty)
}
