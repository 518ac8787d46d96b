package attendance

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"smartpresent/internal/metrics"
)

var validate = validator.New()

// Resolution is the outcome of resolving one identity.
type Resolution struct {
	Entry    RosterEntry
	Created  bool // a new student row was written
	Enrolled bool // a new enrollment row was written
	Renamed  bool
}

// Resolver finds or creates students and their class enrollments.
type Resolver struct {
	store      Store
	rollNumber func() string
}

// NewResolver creates a resolver backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, rollNumber: RandomRollNumber}
}

// RandomRollNumber returns a uniform 5-digit roll number in 10000..99999.
// Uniqueness within a class is not checked.
func RandomRollNumber() string {
	return strconv.Itoa(10000 + rand.Intn(90000))
}

type identityInput struct {
	ClassID string `validate:"required"`
	Name    string `validate:"required,max=200"`
}

// Resolve returns the student known by uid, or creates one named name.
// A known student whose stored name differs is renamed to name.
func (r *Resolver) Resolve(ctx context.Context, classID, name, uid string) (Resolution, error) {
	if err := validate.Struct(identityInput{ClassID: classID, Name: strings.TrimSpace(name)}); err != nil {
		return Resolution{}, validationError("class id and student name are required")
	}

	if NormalizeUID(uid) != "" {
		found, err := r.store.FindStudentByUID(ctx, uid)
		if err != nil {
			return Resolution{}, fmt.Errorf("lookup uid %q: %w", uid, err)
		}
		if found != nil {
			return r.resolveExisting(ctx, classID, name, *found)
		}
	}

	st, err := r.store.InsertStudent(ctx, Student{Name: name, UID: strings.TrimSpace(uid)})
	if err != nil {
		return Resolution{}, fmt.Errorf("create student %q: %w", name, err)
	}
	metrics.StudentsCreated.Inc()

	enr, err := r.store.InsertEnrollment(ctx, Enrollment{ClassID: classID, StudentID: st.ID, RollNumber: r.rollNumber()})
	if err != nil {
		return Resolution{}, fmt.Errorf("enroll student %s: %w", st.ID, err)
	}
	return Resolution{
		Entry:    RosterEntry{StudentID: st.ID, Name: st.Name, UID: st.UID, RollNumber: enr.RollNumber},
		Created:  true,
		Enrolled: true,
	}, nil
}

func (r *Resolver) resolveExisting(ctx context.Context, classID, name string, st Student) (Resolution, error) {
	res := Resolution{}
	if st.Name != name {
		if err := r.store.RenameStudent(ctx, st.ID, name); err != nil {
			return Resolution{}, fmt.Errorf("rename student %s: %w", st.ID, err)
		}
		st.Name = name
		res.Renamed = true
	}

	enr, err := r.store.GetEnrollment(ctx, classID, st.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("lookup enrollment %s: %w", st.ID, err)
	}
	if enr == nil {
		created, err := r.store.InsertEnrollment(ctx, Enrollment{ClassID: classID, StudentID: st.ID, RollNumber: r.rollNumber()})
		if err != nil {
			return Resolution{}, fmt.Errorf("enroll student %s: %w", st.ID, err)
		}
		enr = &created
		res.Enrolled = true
	}

	res.Entry = RosterEntry{StudentID: st.ID, Name: st.Name, UID: st.UID, RollNumber: enr.RollNumber}
	return res, nil
}
