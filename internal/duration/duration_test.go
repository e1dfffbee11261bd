package duration

import (
	"testing"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
)

func TestCountCaptures_noWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	got := CountCaptures(start, end, 60, CaptureWindow{}, time.UTC)
	if got != 60 {
		t.Errorf("CountCaptures = %d, want 60", got)
	}
}

func TestCountCaptures_withWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC)
	window := CaptureWindow{Enabled: true, Start: clock.TimeOfDay{Hour: 8, Minute: 0}, End: clock.TimeOfDay{Hour: 20, Minute: 0}}

	got := CountCaptures(start, end, 3600, window, time.UTC)
	// Day 1: 08:00-20:00 -> 12h window, wholly after start (06:00), so the full window is available = 12 captures
	// Day 2: 00:00-06:00 doesn't overlap window (08:00-20:00) so nothing more.
	if got != 12 {
		t.Errorf("CountCaptures = %d, want 12", got)
	}
}

func TestCalculate_openEndedDefaultsToOneHour(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	est := Calculate(start, nil, 60, 30, CaptureWindow{}, time.UTC, nil, nil)
	if est.Captures != 60 {
		t.Errorf("Captures = %d, want 60", est.Captures)
	}
	if est.DurationSeconds != 2.0 {
		t.Errorf("DurationSeconds = %v, want 2.0", est.DurationSeconds)
	}
}

func TestCalculate_withEndDate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	est := Calculate(start, &end, 60, 30, CaptureWindow{}, time.UTC, nil, nil)
	if est.Captures != 120 {
		t.Errorf("Captures = %d, want 120", est.Captures)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{5, "5s"},
		{65, "1m 5s"},
		{3725, "1h 2m 5s"},
	}
	for _, c := range cases {
		if got := formatDuration(c.seconds); got != c.want {
			t.Errorf("formatDuration(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
