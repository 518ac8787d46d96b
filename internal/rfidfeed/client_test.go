package rfidfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchParsesMixedKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[
			{"UID":"89C39994","Timestamp":"2025-09-25 23:40:56"},
			{"CardID":" 99ac9b94 ","INTime":"2025-09-25T23:43:55Z"},
			{"StudentID":12345,"Date":1758843835},
			{"RFID":"","Timestamp":"2025-09-25 23:50:00"},
			{"Name":"no uid at all"},
			{"ID":"A7F3C215","Timestamp":"yesterday"}
		]}`))
	}))
	defer srv.Close()

	loc := time.FixedZone("IST", 5*3600+1800)
	scans, err := New(srv.URL, loc).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(scans) != 4 {
		t.Fatalf("want 4 scans, got %d: %+v", len(scans), scans)
	}
	if !scans[0].At.Equal(time.Date(2025, 9, 25, 23, 40, 56, 0, loc)) {
		t.Fatalf("local timestamp %v", scans[0].At)
	}
	if scans[1].UID != "99ac9b94" || scans[1].At.Hour() != 23 || scans[1].At.Location() != time.UTC {
		t.Fatalf("rfc3339 scan %+v", scans[1])
	}
	if scans[2].UID != "12345" || scans[2].At.Unix() != 1758843835 {
		t.Fatalf("numeric scan %+v", scans[2])
	}
	if scans[3].UID != "A7F3C215" || !scans[3].At.IsZero() {
		t.Fatalf("unparseable time should be zero: %+v", scans[3])
	}
}

func TestFetchFailures(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		},
		"envelope": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"reader offline"}`))
		},
		"json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			if _, err := New(srv.URL, time.UTC).Fetch(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New("", time.UTC).Fetch(context.Background()); err == nil {
		t.Fatal("expected error without url")
	}
}

func TestParseTimeMilliseconds(t *testing.T) {
	got, ok := ParseTime(float64(1758843835123), time.UTC)
	if !ok || got.UnixMilli() != 1758843835123 {
		t.Fatalf("got %v, %v", got, ok)
	}
	if _, ok := ParseTime(float64(-5), time.UTC); ok {
		t.Fatal("negative epoch accepted")
	}
}
