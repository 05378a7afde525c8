package domain

import (
	"fmt"
	"time"
)

// Instant layouts that carry an explicit UTC offset or zone.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Instant layouts with no offset. These are recognized only to report
// ErrTimezoneRequired instead of a generic parse failure.
var naiveInstantLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant parses a point in time from its textual form. The text must
// carry an explicit UTC offset or zone ("2026-02-06T10:00:00+09:00",
// "...Z"); a spelling without one fails with ErrTimezoneRequired so callers
// never guess which wall clock the user meant.
func ParseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveInstantLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, fmt.Errorf("parse instant %q: %w", s, ErrTimezoneRequired)
		}
	}
	return time.Time{}, fmt.Errorf("parse instant %q: unrecognized format", s)
}
