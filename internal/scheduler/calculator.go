// Package scheduler implements the job state calculator (C2) and the
// background tick loop (C5) described in spec.md §4.2 and §4.5.
//
// Calculator is pure and side-effect free: given a job, a reference time, and
// an optional pending-capture timestamp, it deterministically returns the
// job's status, its next capture time, and a human-readable reason. The
// scheduler and job creation derive status and `next_scheduled_capture_at`
// from it (by convention, not the type system — as job_state.py is in the
// source project); a PATCH that sets `status` explicitly writes the
// requested value directly.
package scheduler

import (
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
)

const maxWindowSearchDays = 30
const maxGridSlotsPerWindowDay = 1000

// Calculator evaluates job state against a fixed timezone. Window membership
// is always derived from wall-clock local time in this zone (SPEC_FULL.md §5).
type Calculator struct {
	Clock *clock.Clock
}

// NewCalculator builds a Calculator bound to clk's location.
func NewCalculator(clk *clock.Clock) *Calculator {
	return &Calculator{Clock: clk}
}

func (c *Calculator) loc() *time.Location { return c.Clock.Location() }

func (c *Calculator) timeOfDay(t time.Time) clock.TimeOfDay {
	return clock.Of(t, c.loc())
}

// nextGridSlot computes the next timestamp on the schedule grid
// start + N*interval, strictly after refTime. Returns nil if end is set and
// the slot would fall after it (spec.md invariant 5: the grid, not
// "last_capture + interval", prevents drift).
func nextGridSlot(job Job, refTime time.Time) *time.Time {
	if refTime.Before(job.StartDatetime) {
		t := job.StartDatetime
		return &t
	}

	interval := time.Duration(job.IntervalSeconds) * time.Second
	elapsed := refTime.Sub(job.StartDatetime)
	n := int64(elapsed / interval)
	next := job.StartDatetime.Add(time.Duration(n+1) * interval)
	for !next.After(refTime) {
		n++
		next = job.StartDatetime.Add(time.Duration(n+1) * interval)
	}

	if job.EndDatetime != nil && next.After(*job.EndDatetime) {
		return nil
	}
	return &next
}

// combineDate builds a timestamp on day's date at the given time of day, in loc.
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

// nextWindowStart computes when the job's daily window will next open,
// relative to refTime. Mirrors calculate_next_window_start in job_state.py.
func (c *Calculator) nextWindowStart(refTime time.Time, start, end clock.TimeOfDay) time.Time {
	loc := c.loc()
	current := c.timeOfDay(refTime)
	todayStart := combineDate(refTime, start, loc)

	if clock.InWindow(current, start, end) {
		if todLess(end, start) && todLess(current, start) {
			// Inside a midnight-crossing window, after midnight: it next
			// opens this evening.
			return todayStart
		}
		return todayStart.AddDate(0, 0, 1)
	}

	if todLess(start, end) {
		// Normal window, doesn't cross midnight.
		if todLess(current, start) {
			return todayStart
		}
		return todayStart.AddDate(0, 0, 1)
	}

	// Crosses midnight: outside the window the current time lies between
	// end and start, so the window opens later today.
	if todLess(current, start) {
		return todayStart
	}
	return todayStart.AddDate(0, 0, 1)
}

// findCaptureInWindow searches forward, day by day, for the earliest grid
// slot that falls inside the daily window. Mirrors find_next_capture_in_window.
func (c *Calculator) findCaptureInWindow(job Job, windowStart time.Time, start, end clock.TimeOfDay) *time.Time {
	loc := c.loc()
	for dayOffset := 0; dayOffset < maxWindowSearchDays; dayOffset++ {
		currentWindowStart := windowStart.AddDate(0, 0, dayOffset)
		if job.EndDatetime != nil && currentWindowStart.After(*job.EndDatetime) {
			return nil
		}

		windowEnd := combineDate(currentWindowStart, end, loc)
		if todLess(end, start) {
			// Window crosses midnight: the end time belongs to the next day.
			windowEnd = windowEnd.AddDate(0, 0, 1)
		}

		searchTime := currentWindowStart.Add(-time.Second)
		for i := 0; i < maxGridSlotsPerWindowDay; i++ {
			candidate := nextGridSlot(job, searchTime)
			if candidate == nil {
				return nil
			}
			if candidate.After(windowEnd) {
				break
			}
			if clock.InWindow(c.timeOfDay(*candidate), start, end) {
				return candidate
			}
			searchTime = *candidate
		}
	}
	return nil
}

// Calculate is the canonical job-state contract (spec.md §4.2, steps 1-7).
func (c *Calculator) Calculate(job Job, refTime time.Time, pending *time.Time) (status Status, next *time.Time, reason string) {
	if job.Status == StatusDisabled {
		return StatusDisabled, nil, "manually disabled"
	}

	if refTime.Before(job.StartDatetime) {
		start := job.StartDatetime
		return StatusSleeping, &start, "not started"
	}

	if pending != nil {
		grace := time.Duration(job.IntervalSeconds*2) * time.Second
		if pending.After(refTime.Add(-grace)) {
			if job.TimeWindowEnabled {
				curIn := clock.InWindow(c.timeOfDay(refTime), job.WindowStart, job.WindowEnd)
				pendIn := clock.InWindow(c.timeOfDay(*pending), job.WindowStart, job.WindowEnd)
				if curIn && pendIn {
					return StatusActive, pending, "pending"
				}
				// Either side drifted outside the window: fall through and recalculate.
			} else {
				return StatusActive, pending, "pending"
			}
		}
	}

	n := nextGridSlot(job, refTime)
	if n == nil {
		return StatusCompleted, nil, "no more captures"
	}

	if !job.TimeWindowEnabled {
		return StatusActive, n, "active"
	}

	curIn := clock.InWindow(c.timeOfDay(refTime), job.WindowStart, job.WindowEnd)
	nextIn := clock.InWindow(c.timeOfDay(*n), job.WindowStart, job.WindowEnd)
	if curIn && nextIn {
		return StatusActive, n, "active"
	}

	windowStart := c.nextWindowStart(refTime, job.WindowStart, job.WindowEnd)
	slot := c.findCaptureInWindow(job, windowStart, job.WindowStart, job.WindowEnd)
	if slot == nil {
		return StatusCompleted, nil, "ends before next window"
	}
	return StatusSleeping, slot, "outside window"
}

// ShouldExecute validates a due capture against the job's current
// configuration, guarding against a race where the job was edited between
// scheduling and dispatch (spec.md §4.5 Phase 2).
func (c *Calculator) ShouldExecute(job Job, scheduledTime, now time.Time) (bool, string) {
	if scheduledTime.Before(job.StartDatetime) {
		return false, "scheduled before job start"
	}
	if job.EndDatetime != nil && scheduledTime.After(*job.EndDatetime) {
		return false, "scheduled after job end"
	}
	if job.TimeWindowEnabled && !clock.InWindow(c.timeOfDay(scheduledTime), job.WindowStart, job.WindowEnd) {
		return false, "scheduled time was outside time window"
	}
	return true, "valid capture"
}
