package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"smartpresent/internal/metrics"
	"smartpresent/internal/rfidfeed"
)

// State is the lifecycle state of a class's attendance board.
type State string

const (
	StateNoSession State = "no_session"
	StateDrafting  State = "drafting"
	StateFinalized State = "finalized"
)

// Draft is a session the teacher has opened but not yet saved. SessionID is
// set once the session row exists.
type Draft struct {
	SessionDate time.Time `json:"session_date"`
	Topic       string    `json:"topic"`
	SessionID   string    `json:"session_id,omitempty"`
}

// ScanSource provides RFID scan log entries.
type ScanSource interface {
	Fetch(ctx context.Context) ([]rfidfeed.Scan, error)
}

// EventKind names a board change observers can react to.
type EventKind string

const (
	EventSessionFinalized EventKind = "session.finalized"
	EventRecordsChanged   EventKind = "records.changed"
)

// Event is delivered to subscribers after persisted attendance changes.
type Event struct {
	Kind      EventKind
	ClassID   string
	SessionID string
}

// Subscriber receives events synchronously, after the board lock of the
// class is released.
type Subscriber func(Event)

// Options configures a Service. Zero values select defaults.
type Options struct {
	Policy     Policy
	Location   *time.Location
	ScanWindow time.Duration
	Feed       ScanSource
	Now        func() time.Time
}

// Service owns the live attendance board of every class: roster, marks and
// the draft session, and the flows that persist them.
type Service struct {
	store    Store
	resolver *Resolver
	feed     ScanSource
	policy   Policy
	loc      *time.Location
	window   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	boards map[string]*board

	subMu sync.RWMutex
	subs  map[int]Subscriber
	next  int
}

type board struct {
	mu     sync.Mutex
	loaded bool
	roster []RosterEntry
	marks  map[string]bool
	draft  *Draft
	state  State

	// pending holds student changes made through other classes. Guarded by
	// Service.mu, not board.mu.
	pending []studentChange
}

// studentChange is a global student edit that every board enrolling the
// student must pick up.
type studentChange struct {
	studentID string
	name      string
	removed   bool
}

// NewService creates a service backed by a store.
func NewService(store Store, opts Options) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicyInsertOnce
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ScanWindow <= 0 {
		opts.ScanWindow = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		resolver: NewResolver(store),
		feed:     opts.Feed,
		policy:   opts.Policy,
		loc:      opts.Location,
		window:   opts.ScanWindow,
		now:      opts.Now,
		boards:   make(map[string]*board),
		subs:     make(map[int]Subscriber),
	}
}

// Subscribe registers fn for board events and returns a function removing it.
func (s *Service) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// emit delivers *evt unless it is empty. Deferred before the board lock so
// subscribers run after the board is released.
func (s *Service) emit(evt *Event) {
	if evt.Kind == "" {
		return
	}
	s.notify(*evt)
}

func (s *Service) notify(evt Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(evt)
	}
}

// acquire returns the locked, loaded board of a class. Callers must unlock it.
func (s *Service) acquire(ctx context.Context, classID string) (*board, error) {
	if classID == "" {
		return nil, validationError("class id is required")
	}
	s.mu.Lock()
	b, ok := s.boards[classID]
	if !ok {
		b = &board{state: StateNoSession}
		s.boards[classID] = b
	}
	s.mu.Unlock()

	b.mu.Lock()
	if !b.loaded {
		if err := s.load(ctx, classID, b); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
	s.catchUp(b)
	return b, nil
}

// catchUp applies student changes queued by other classes. b.mu must be held.
func (s *Service) catchUp(b *board) {
	s.mu.Lock()
	changes := b.pending
	b.pending = nil
	s.mu.Unlock()

	for _, c := range changes {
		if c.removed {
			b.roster = filter(b.roster, func(e RosterEntry) bool { return e.StudentID != c.studentID })
			delete(b.marks, c.studentID)
			continue
		}
		for i := range b.roster {
			if b.roster[i].StudentID == c.studentID {
				b.roster[i].Name = c.name
			}
		}
	}
}

// broadcast queues c on every cached board except the acting one. The acting
// board is patched by its caller.
func (s *Service) broadcast(acting *board, c studentChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.boards {
		if b != acting {
			b.pending = append(b.pending, c)
		}
	}
}

// admitAll applies a resolution to the acting board and propagates renames
// to the others.
func (s *Service) admitAll(b *board, res Resolution) {
	b.admit(res)
	if res.Renamed {
		s.broadcast(b, studentChange{studentID: res.Entry.StudentID, name: res.Entry.Name})
	}
}

func (s *Service) load(ctx context.Context, classID string, b *board) error {
	cls, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("load class %s: %w", classID, err)
	}
	if cls == nil {
		return fmt.Errorf("class %s: %w", classID, ErrNotFound)
	}
	roster, err := s.store.ListRoster(ctx, classID)
	if err != nil {
		return fmt.Errorf("load roster %s: %w", classID, err)
	}
	b.roster = roster
	b.marks = make(map[string]bool, len(roster))
	for _, e := range roster {
		b.marks[e.StudentID] = false
	}
	b.loaded = true
	return nil
}

// Forget drops the cached board of a class, e.g. after the class is deleted.
func (s *Service) Forget(classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, classID)
}

// BoardStudent is a roster entry with its live mark.
type BoardStudent struct {
	RosterEntry
	Present bool `json:"present"`
}

// Board is a snapshot of a class's live attendance view.
type Board struct {
	ClassID  string         `json:"class_id"`
	State    State          `json:"state"`
	Draft    *Draft         `json:"draft,omitempty"`
	Students []BoardStudent `json:"students"`
	Stats    Stats          `json:"stats"`
}

func (b *board) snapshot(classID string) Board {
	out := Board{ClassID: classID, State: b.state, Students: make([]BoardStudent, 0, len(b.roster))}
	if b.draft != nil {
		d := *b.draft
		out.Draft = &d
	}
	for _, e := range b.roster {
		out.Students = append(out.Students, BoardStudent{RosterEntry: e, Present: b.marks[e.StudentID]})
	}
	out.Stats = ComputeStats(b.marks, len(b.roster))
	return out
}

func (b *board) entry(studentID string) (RosterEntry, bool) {
	for _, e := range b.roster {
		if e.StudentID == studentID {
			return e, true
		}
	}
	return RosterEntry{}, false
}

// admit applies a resolution to the board: new students are appended and
// seeded absent, renamed ones are updated in place.
func (b *board) admit(res Resolution) {
	for i := range b.roster {
		if b.roster[i].StudentID == res.Entry.StudentID {
			b.roster[i] = res.Entry
			return
		}
	}
	b.roster = append(b.roster, res.Entry)
	b.marks[res.Entry.StudentID] = false
}

func (b *board) resetMarks() {
	for id := range b.marks {
		b.marks[id] = false
	}
}

// Board returns the live view of a class.
func (s *Service) Board(ctx context.Context, classID string) (Board, error) {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Board{}, err
	}
	defer b.mu.Unlock()
	return b.snapshot(classID), nil
}

// Reload re-reads the roster from storage and resets the marks to absent.
// The draft, if any, is kept.
func (s *Service) Reload(ctx context.Context, classID string) (Board, error) {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Board{}, err
	}
	defer b.mu.Unlock()
	if err := s.load(ctx, classID, b); err != nil {
		return Board{}, err
	}
	return b.snapshot(classID), nil
}

// Stats returns present count, roster size and attendance rate from the live
// marks.
func (s *Service) Stats(ctx context.Context, classID string) (Stats, error) {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Stats{}, err
	}
	defer b.mu.Unlock()
	return ComputeStats(b.marks, len(b.roster)), nil
}

// AddStudent creates a student named name and enrolls it in the class.
func (s *Service) AddStudent(ctx context.Context, classID, name string) (RosterEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RosterEntry{}, validationError("student name is required")
	}
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return RosterEntry{}, err
	}
	defer b.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, classID, name, "")
	if err != nil {
		log.Printf("add student to %s failed: %v", classID, err)
		return RosterEntry{}, err
	}
	s.admitAll(b, res)
	return res.Entry, nil
}

// RemoveStudent deletes a student with its enrollments and records. Students
// are shared between classes, so every cached board drops the student.
func (s *Service) RemoveStudent(ctx context.Context, classID, studentID string) error {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if _, ok := b.entry(studentID); !ok {
		return fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	if err := s.store.DeleteStudent(ctx, studentID); err != nil {
		return fmt.Errorf("delete student %s: %w", studentID, err)
	}
	b.roster = filter(b.roster, func(e RosterEntry) bool { return e.StudentID != studentID })
	delete(b.marks, studentID)
	s.broadcast(b, studentChange{studentID: studentID, removed: true})
	return nil
}

// CreateSession opens a draft session. Nothing is persisted until Finalize.
func (s *Service) CreateSession(ctx context.Context, classID string, date time.Time, topic string) (Board, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Board{}, validationError("session topic is required")
	}
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Board{}, err
	}
	defer b.mu.Unlock()

	if b.state == StateDrafting {
		return Board{}, ErrSessionActive
	}
	if date.IsZero() {
		date = s.now()
	}
	b.draft = &Draft{SessionDate: date, Topic: topic}
	b.state = StateDrafting
	return b.snapshot(classID), nil
}

// CancelSession discards the draft. Marks are left as they are.
func (s *Service) CancelSession(ctx context.Context, classID string) error {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if b.state != StateDrafting {
		return ErrNoActiveSession
	}
	b.draft = nil
	b.state = StateNoSession
	return nil
}

// Mark sets a student's live mark while a draft is open.
func (s *Service) Mark(ctx context.Context, classID, studentID string, present bool) (Stats, error) {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Stats{}, err
	}
	defer b.mu.Unlock()

	if b.state != StateDrafting {
		return Stats{}, ErrNoActiveSession
	}
	e, ok := b.entry(studentID)
	if !ok {
		return Stats{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	ev := ManualToggle(e, present)
	b.marks[ev.StudentID] = ev.Present
	return ComputeStats(b.marks, len(b.roster)), nil
}

// FinalizeResult reports what Finalize persisted.
type FinalizeResult struct {
	Session  Session `json:"session"`
	Inserted int     `json:"inserted"`
	Updated  int     `json:"updated"`
}

// Finalize persists the draft session and one record per marked student.
// When record writes fail the session row stays, the draft keeps its id and
// ErrPartialSave is returned so a retry reuses the same session.
func (s *Service) Finalize(ctx context.Context, classID, createdBy string) (FinalizeResult, error) {
	var evt Event
	defer s.emit(&evt)
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return FinalizeResult{}, err
	}
	defer b.mu.Unlock()

	if b.state != StateDrafting || b.draft == nil {
		return FinalizeResult{}, ErrNoActiveSession
	}

	var sess Session
	if b.draft.SessionID == "" {
		sess, err = s.store.InsertSession(ctx, Session{
			ClassID:     classID,
			SessionDate: b.draft.SessionDate,
			Topic:       b.draft.Topic,
			CreatedBy:   createdBy,
		})
		if err != nil {
			log.Printf("session insert for %s failed: %v", classID, err)
			return FinalizeResult{}, fmt.Errorf("save session: %w", err)
		}
		b.draft.SessionID = sess.ID
		metrics.SessionsCreated.WithLabelValues("manual").Inc()
	} else {
		sess = Session{ID: b.draft.SessionID, ClassID: classID, SessionDate: b.draft.SessionDate, Topic: b.draft.Topic, CreatedBy: createdBy}
	}

	batch := make([]Evidence, 0, len(b.marks))
	for _, e := range b.roster {
		if present, ok := b.marks[e.StudentID]; ok {
			batch = append(batch, ManualToggle(e, present))
		}
	}

	plan, err := s.apply(ctx, sess.ID, batch)
	res := FinalizeResult{Session: sess, Inserted: len(plan.Insert), Updated: len(plan.Update)}
	if err != nil {
		log.Printf("attendance records for session %s failed: %v", sess.ID, err)
		return res, fmt.Errorf("%w: %v", ErrPartialSave, err)
	}

	b.resetMarks()
	b.draft = nil
	b.state = StateFinalized
	metrics.SessionsFinalized.Inc()
	evt = Event{Kind: EventSessionFinalized, ClassID: classID, SessionID: sess.ID}
	return res, nil
}

// apply merges batch into the persisted records of a session and writes the
// resulting plan.
func (s *Service) apply(ctx context.Context, sessionID string, batch []Evidence) (Plan, error) {
	existing, err := s.store.ListRecords(ctx, sessionID)
	if err != nil {
		return Plan{}, fmt.Errorf("load records: %w", err)
	}
	plan := Merge(sessionID, existing, batch, s.policy, s.now().UTC())
	if err := s.store.InsertRecords(ctx, plan.Insert); err != nil {
		return plan, fmt.Errorf("insert records: %w", err)
	}
	metrics.RecordWrites.WithLabelValues("insert").Add(float64(len(plan.Insert)))
	for _, rec := range plan.Update {
		if err := s.store.UpdateRecord(ctx, rec); err != nil {
			return plan, fmt.Errorf("update record %s: %w", rec.StudentID, err)
		}
		metrics.RecordWrites.WithLabelValues("update").Inc()
	}
	for _, ev := range batch {
		metrics.Evidence.WithLabelValues(string(ev.Method)).Inc()
	}
	return plan, nil
}

// dayBounds returns the first and last instant of t's calendar day in loc.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// EnsureSessionForToday returns today's session of the class, creating one
// titled "<source> Session <date>" when none exists. It is the entry point for
// callers that manage their own evidence; the ingestion flows in this package
// resolve the session under the board lock they already hold.
func (s *Service) EnsureSessionForToday(ctx context.Context, classID, source, createdBy string) (Session, error) {
	b, err := s.acquire(ctx, classID)
	if err != nil {
		return Session{}, err
	}
	defer b.mu.Unlock()
	return s.ensureToday(ctx, classID, source, createdBy)
}

func (s *Service) ensureToday(ctx context.Context, classID, source, createdBy string) (Session, error) {
	now := s.now()
	from, to := dayBounds(now, s.loc)
	found, err := s.store.FindSessionBetween(ctx, classID, from, to)
	if err != nil {
		return Session{}, fmt.Errorf("lookup today's session: %w", err)
	}
	if found != nil {
		return *found, nil
	}
	sess, err := s.store.InsertSession(ctx, Session{
		ClassID:     classID,
		SessionDate: now,
		Topic:       fmt.Sprintf("%s Session %s", source, now.In(s.loc).Format("1/2/2006")),
		CreatedBy:   createdBy,
	})
	if err != nil {
		return Session{}, fmt.Errorf("create today's session: %w", err)
	}
	metrics.SessionsCreated.WithLabelValues(source).Inc()
	return sess, nil
}
