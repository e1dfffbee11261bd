// Package duration estimates how long an assembled timelapse video will
// run, given a job's capture interval, optional daily window, and either a
// fixed end date or a caller-supplied lookahead (hours/days) for open-ended
// jobs. Ported from the source project's duration_calculator.py.
package duration

import (
	"fmt"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
)

const maxWindowIterations = 10000

// CaptureWindow describes the window-awareness inputs CountCaptures needs.
type CaptureWindow struct {
	Enabled bool
	Start   clock.TimeOfDay
	End     clock.TimeOfDay
}

func combineDate(day time.Time, tod clock.TimeOfDay, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc)
}

func todLess(a, b clock.TimeOfDay) bool {
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	return a.Minute < b.Minute
}

// CountCaptures returns how many captures would occur between start and end
// (exclusive of end) at intervalSeconds spacing, restricted to window when
// enabled. Mirrors calculate_captures_in_time_range, including its
// max-iteration safety cap.
func CountCaptures(start, end time.Time, intervalSeconds int, window CaptureWindow, loc *time.Location) int {
	if !window.Enabled {
		if !end.After(start) {
			return 0
		}
		return int(end.Sub(start).Seconds()) / intervalSeconds
	}

	total := 0
	current := start
	spansMidnight := !todLess(window.Start, window.End)

	for i := 0; i < maxWindowIterations && current.Before(end); i++ {
		currentTOD := clock.Of(current, loc)

		var dayWindowStart, dayWindowEnd time.Time
		if spansMidnight {
			if todLess(currentTOD, window.End) {
				dayWindowStart = combineDate(current.AddDate(0, 0, -1), window.Start, loc)
				dayWindowEnd = combineDate(current, window.End, loc)
			} else {
				dayWindowStart = combineDate(current, window.Start, loc)
				dayWindowEnd = combineDate(current.AddDate(0, 0, 1), window.End, loc)
			}
		} else {
			dayWindowStart = combineDate(current, window.Start, loc)
			dayWindowEnd = combineDate(current, window.End, loc)
		}

		if !dayWindowEnd.After(current) {
			y, m, d := current.Date()
			current = time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			continue
		}

		captureStart := current
		if dayWindowStart.After(captureStart) {
			captureStart = dayWindowStart
		}
		captureEnd := end
		if dayWindowEnd.Before(captureEnd) {
			captureEnd = dayWindowEnd
		}

		if captureStart.Before(captureEnd) {
			total += int(captureEnd.Sub(captureStart).Seconds()) / intervalSeconds
			current = dayWindowEnd
		} else {
			if !dayWindowStart.Before(end) {
				break
			}
			current = dayWindowStart
		}
	}

	return total
}

// Estimate is the rendered duration result for one framerate.
type Estimate struct {
	Captures          int
	FPS               int
	DurationSeconds   float64
	DurationFormatted string
}

// Calculate builds an Estimate for a job. When end is non-nil, the count
// spans [start, *end); otherwise it spans [start, start+lookahead), where
// lookahead defaults to 1 hour when neither hours nor days is given.
func Calculate(start time.Time, end *time.Time, intervalSeconds, fps int, window CaptureWindow, loc *time.Location, hours, days *float64) Estimate {
	var rangeEnd time.Time
	if end != nil {
		rangeEnd = *end
	} else {
		lookahead := time.Hour
		switch {
		case days != nil:
			lookahead = time.Duration(*days * float64(24*time.Hour))
		case hours != nil:
			lookahead = time.Duration(*hours * float64(time.Hour))
		}
		rangeEnd = start.Add(lookahead)
	}

	captures := CountCaptures(start, rangeEnd, intervalSeconds, window, loc)
	videoSeconds := float64(captures) / float64(fps)

	return Estimate{
		Captures:          captures,
		FPS:               fps,
		DurationSeconds:   videoSeconds,
		DurationFormatted: formatDuration(videoSeconds),
	}
}

func formatDuration(seconds float64) string {
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := int(seconds) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
