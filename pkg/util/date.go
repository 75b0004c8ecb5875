package util

import (
	"fmt"
	"strconv"
	"time"
)

// unix timestamps above this are taken as milliseconds
const millisThreshold = 1e11

// ParseTime accepts RFC3339, RFC3339Nano and unix timestamps in seconds or
// milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > millisThreshold {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ResolveRange turns optional from/to strings into a concrete range. A missing
// to means now; a missing from means window before to.
func ResolveRange(fromStr, toStr string, window time.Duration, now time.Time) (time.Time, time.Time, error) {
	to := now
	if toStr != "" {
		t, ok := ParseTime(toStr)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %q", toStr)
		}
		to = t
	}

	from := to.Add(-window)
	if fromStr != "" {
		t, ok := ParseTime(fromStr)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %q", fromStr)
		}
		from = t
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s is after to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}
