package attendance

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var rollPattern = regexp.MustCompile(`^\d{5}$`)

func seedClass(t *testing.T, store *MemoryStore, name string) Class {
	t.Helper()
	c, err := store.CreateClass(context.Background(), Class{Name: name})
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	return c
}

func mustResolve(t *testing.T, r *Resolver, classID, name, uid string) Resolution {
	t.Helper()
	res, err := r.Resolve(context.Background(), classID, name, uid)
	if err != nil {
		t.Fatalf("resolve %q: %v", name, err)
	}
	return res
}

func TestResolveCreatesStudentAndEnrollment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	r := NewResolver(store)

	res, err := r.Resolve(ctx, cls.ID, "Ann Lee", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Created || !res.Enrolled {
		t.Fatalf("expected new student and enrollment, got %+v", res)
	}
	if !rollPattern.MatchString(res.Entry.RollNumber) {
		t.Fatalf("roll number %q is not 5 digits", res.Entry.RollNumber)
	}
	roster, err := store.ListRoster(ctx, cls.ID)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 1 || roster[0].StudentID != res.Entry.StudentID {
		t.Fatalf("unexpected roster %+v", roster)
	}
	if len(store.students) != 1 || len(store.enrollments) != 1 {
		t.Fatalf("want exactly one student and enrollment, got %d/%d", len(store.students), len(store.enrollments))
	}
}

func TestResolveMatchesUIDCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	r := NewResolver(store)

	first, err := r.Resolve(ctx, cls.ID, "Ann Lee", "A1B2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, cls.ID, "Ann Lee", " a1b2 ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second.Entry.StudentID != first.Entry.StudentID {
		t.Fatalf("uid lookup created a second student")
	}
	if second.Created || second.Enrolled || second.Renamed {
		t.Fatalf("expected a plain match, got %+v", second)
	}
	if second.Entry.RollNumber != first.Entry.RollNumber {
		t.Fatalf("roll number changed: %s -> %s", first.Entry.RollNumber, second.Entry.RollNumber)
	}
}

func TestResolveRenamesKnownStudent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cls := seedClass(t, store, "Physics")
	r := NewResolver(store)

	first := mustResolve(t, r, cls.ID, "Ann Lee", "X1")
	res, err := r.Resolve(ctx, cls.ID, "Ann Lee-Park", "x1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Renamed || res.Entry.Name != "Ann Lee-Park" || res.Entry.StudentID != first.Entry.StudentID {
		t.Fatalf("expected rename in place, got %+v", res)
	}
	if store.students[0].Name != "Ann Lee-Park" {
		t.Fatalf("stored name not updated: %q", store.students[0].Name)
	}
}

func TestResolveEnrollsKnownStudentInAnotherClass(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	physics := seedClass(t, store, "Physics")
	maths := seedClass(t, store, "Maths")
	r := NewResolver(store)

	first := mustResolve(t, r, physics.ID, "Ann Lee", "X1")
	res, err := r.Resolve(ctx, maths.ID, "Ann Lee", "X1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Created || !res.Enrolled || res.Entry.StudentID != first.Entry.StudentID {
		t.Fatalf("expected existing student enrolled in second class, got %+v", res)
	}
}

func TestResolveValidation(t *testing.T) {
	r := NewResolver(NewMemoryStore())
	for _, tc := range []struct{ classID, name string }{
		{"", "Ann"},
		{"c1", ""},
		{"c1", "   "},
	} {
		if _, err := r.Resolve(context.Background(), tc.classID, tc.name, ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("Resolve(%q, %q) = %v, want ErrValidation", tc.classID, tc.name, err)
		}
	}
}

func TestRandomRollNumberRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if n := RandomRollNumber(); !rollPattern.MatchString(n) {
			t.Fatalf("roll number %q out of range", n)
		}
	}
}
