package fetch

import (
	"fmt"
	"time"
)

// Window is an allowed daily operating window in UTC wall-clock time,
// derived from the target site's crawl policy. The zero Window allows
// every time of day.
type Window struct {
	start time.Duration // offset from midnight UTC
	end   time.Duration
	set   bool
}

// ParseWindow builds a Window from "HH:MM" boundaries. Both empty means
// unrestricted. The window is inclusive on both ends, matching a policy
// expressed as "visit between 04:00 and 08:45".
func ParseWindow(start, end string) (Window, error) {
	if start == "" && end == "" {
		return Window{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	return Window{start: s, end: e, set: true}, nil
}

func parseClock(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Allowed reports whether now falls inside the operating window. Pure
// function of its argument; callers that are denied must stop dispatching
// and wind the run down cleanly rather than treat this as an error.
func (w Window) Allowed(now time.Time) bool {
	if !w.set {
		return true
	}
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	offset := utc.Sub(midnight)
	if w.start <= w.end {
		return offset >= w.start && offset <= w.end
	}
	// Window wraps midnight, e.g. 22:00-02:00.
	return offset >= w.start || offset <= w.end
}
