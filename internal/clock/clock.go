// Package clock provides timezone-aware "now", ISO-8601 parsing/formatting, and
// daily time-window arithmetic shared by the scheduler and HTTP layers.
//
// All timestamps the scheduler persists or compares are timezone-aware. A
// single process-wide Clock (backed by the TZ environment variable) is the
// only source of "now" so that window membership is always evaluated against
// wall-clock local time, never a stored fixed offset (see SPEC_FULL.md §5).
package clock

import (
	"fmt"
	"time"
)

// Clock produces timezone-aware instants in a fixed IANA location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock for the named IANA zone. An empty or invalid name
// falls back to UTC, matching the source project's behavior.
func New(tzName string) *Clock {
	if tzName == "" {
		return &Clock{loc: time.UTC}
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return &Clock{loc: time.UTC}
	}
	return &Clock{loc: loc}
}

// Location returns the configured timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current instant in the configured timezone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// ParseISO parses an ISO-8601/RFC3339 timestamp. A naive (offset-less) input
// is attached to the Clock's configured location rather than rejected.
func (c *Clock) ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// Offset-less forms: "2025-01-01T12:00:00" — assume local zone.
	const naiveLayout = "2006-01-02T15:04:05"
	if t, err := time.ParseInLocation(naiveLayout, s, c.loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("clock: invalid ISO-8601 timestamp %q", s)
}

// ToISO serializes t as ISO-8601 with offset, converting to the Clock's
// configured location first so stored strings are consistent regardless of
// the zone the caller constructed t in.
func (c *Clock) ToISO(t time.Time) string {
	return t.In(c.loc).Format(time.RFC3339)
}

// TimeOfDay is a minute-granular time, used for daily window boundaries.
// Seconds are ignored everywhere window membership is evaluated (spec.md §4.1).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("clock: invalid HH:MM time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("clock: time %q out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// String renders back to "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Of extracts the minute-granular time of day from a timestamp, in the given
// location. Seconds and smaller are discarded.
func Of(t time.Time, loc *time.Location) TimeOfDay {
	lt := t.In(loc)
	return TimeOfDay{Hour: lt.Hour(), Minute: lt.Minute()}
}

func (t TimeOfDay) less(o TimeOfDay) bool {
	if t.Hour != o.Hour {
		return t.Hour < o.Hour
	}
	return t.Minute < o.Minute
}

func (t TimeOfDay) equal(o TimeOfDay) bool {
	return t.Hour == o.Hour && t.Minute == o.Minute
}

// InWindow reports whether check lies in the daily window [start, end],
// inclusive on both ends and minute-granular. If start == end the window is
// a single minute; if start > end the window crosses midnight.
func InWindow(check, start, end TimeOfDay) bool {
	switch {
	case start.equal(end):
		return check.equal(start)
	case start.less(end):
		return !check.less(start) && !end.less(check)
	default: // crosses midnight
		return !check.less(start) || !end.less(check)
	}
}
