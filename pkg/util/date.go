package util

import (
	"strconv"
	"time"
)

// unixMilliFloor separates epoch seconds from epoch milliseconds; second
// timestamps stay below it until the year 5138.
const unixMilliFloor = 1e11

// FromUnix converts epoch seconds or milliseconds to UTC.
func FromUnix(ts int64) time.Time {
	if ts > unixMilliFloor {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds or milliseconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnix(ts), true
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

// AlignRange truncates both ends of a range to step.
func AlignRange(from, to time.Time, step time.Duration) (time.Time, time.Time) {
	return from.UTC().Truncate(step), to.UTC().Truncate(step)
}
