package attendance

import (
	"errors"
	"strings"
	"time"

	"smartpresent/internal/csvio"
	"smartpresent/internal/rfidfeed"
)

// Evidence asserts one student's presence or absence.
type Evidence struct {
	StudentID   string
	StudentName string
	Present     bool
	Method      Method
}

// NormalizeUID trims and upper-cases a card UID for comparison.
func NormalizeUID(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}

// MatchUID returns the first roster entry whose UID matches uid.
func MatchUID(roster []RosterEntry, uid string) (RosterEntry, bool) {
	want := NormalizeUID(uid)
	if want == "" {
		return RosterEntry{}, false
	}
	for _, e := range roster {
		if e.UID != "" && NormalizeUID(e.UID) == want {
			return e, true
		}
	}
	return RosterEntry{}, false
}

// ManualToggle is a teacher's explicit present/absent click.
func ManualToggle(e RosterEntry, present bool) Evidence {
	return Evidence{StudentID: e.StudentID, StudentName: e.Name, Present: present, Method: MethodManual}
}

// ScanEvidence is a card sighting; sightings only ever mark presence.
func ScanEvidence(e RosterEntry, method Method) Evidence {
	return Evidence{StudentID: e.StudentID, StudentName: e.Name, Present: true, Method: method}
}

// RecentScans keeps scans taken within window before now. Scans without a
// timestamp or dated in the future are dropped.
func RecentScans(scans []rfidfeed.Scan, now time.Time, window time.Duration) []rfidfeed.Scan {
	cutoff := now.Add(-window)
	var out []rfidfeed.Scan
	for _, s := range scans {
		if s.At.IsZero() || s.At.After(now) || s.At.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

var (
	errRowMissingUID  = errors.New("missing UID")
	errRowMissingName = errors.New("missing student name")
)

// RowInput is a CSV row reduced to what identity resolution needs.
type RowInput struct {
	UID     string
	Name    string
	Present bool
}

// NormalizeRow reads one roster row. The name is FirstName and LastName
// joined by a single space.
func NormalizeRow(row csvio.Row) (RowInput, error) {
	uid := strings.TrimSpace(row.UID)
	if uid == "" {
		return RowInput{}, errRowMissingUID
	}
	name := row.FirstName + " " + row.LastName
	if strings.TrimSpace(name) == "" {
		return RowInput{}, errRowMissingName
	}
	return RowInput{UID: uid, Name: name, Present: checkedIn(row.INTime)}, nil
}

func checkedIn(inTime string) bool {
	switch strings.TrimSpace(inTime) {
	case "", `""`, "NULL", "null":
		return false
	}
	return true
}
