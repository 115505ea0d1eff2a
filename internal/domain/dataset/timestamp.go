package dataset

import (
	"strings"
	"time"
)

// accepted textual timestamp layouts, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a full ISO-8601 timestamp or the space separated
// "YYYY-MM-DD HH:MM:SS" form. Timestamps without a zone are read as UTC.
// ok is false for empty or unparsable input.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// DurationSeconds returns finished - started in seconds, or nil when either
// side is missing or unparsable.
func DurationSeconds(started, finished *string) *float64 {
	if started == nil || finished == nil {
		return nil
	}
	s, ok := ParseTimestamp(*started)
	if !ok {
		return nil
	}
	f, ok := ParseTimestamp(*finished)
	if !ok {
		return nil
	}
	d := f.Sub(s).Seconds()
	return &d
}
