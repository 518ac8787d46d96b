package rfidfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UIDKeys are probed in order for the card identifier of a scan.
var UIDKeys = []string{"UID", "StudentID", "RFID", "CardID", "ID"}

// TimeKeys are probed in order for the scan time.
var TimeKeys = []string{"Timestamp", "INTime", "Date"}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Scan is one validated entry of the scan log. At is zero when no usable
// timestamp was present.
type Scan struct {
	UID string    `json:"uid"`
	At  time.Time `json:"at"`
}

// Client reads the scan log exposed by the RFID reader gateway.
type Client struct {
	URL      string
	HTTP     *http.Client
	Location *time.Location
}

// New creates a client. Timestamps without a zone are read in loc.
func New(url string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		URL:      url,
		Location: loc,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Success bool             `json:"success"`
	Data    []map[string]any `json:"data"`
	Error   string           `json:"error"`
}

// Fetch downloads the scan log. Entries without a UID are dropped.
func (c *Client) Fetch(ctx context.Context) ([]Scan, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("rfid feed url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rfid feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rfid feed error %s: %s", resp.Status, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("rfid feed reported failure: %s", msg)
	}
	return Parse(env.Data, c.Location), nil
}

// Parse converts raw log entries into scans.
func Parse(data []map[string]any, loc *time.Location) []Scan {
	scans := make([]Scan, 0, len(data))
	for _, rec := range data {
		uid, ok := probeString(rec, UIDKeys)
		if !ok {
			continue
		}
		s := Scan{UID: uid}
		if raw, ok := probe(rec, TimeKeys); ok {
			s.At, _ = ParseTime(raw, loc)
		}
		scans = append(scans, s)
	}
	return scans
}

func probe(rec map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func probeString(rec map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// ParseTime accepts the layouts seen in reader logs, or a Unix epoch number
// in seconds or milliseconds.
func ParseTime(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, t, loc); err == nil {
				return ts, true
			}
		}
	case float64:
		if t > 1e12 {
			return time.UnixMilli(int64(t)).In(loc), true
		}
		if t > 0 {
			return time.Unix(int64(t), 0).In(loc), true
		}
	}
	return time.Time{}, false
}
