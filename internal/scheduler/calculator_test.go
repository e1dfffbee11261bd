package scheduler

import (
	"testing"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func baseJob() Job {
	return Job{
		ID:              1,
		Status:          StatusActive,
		StartDatetime:   mustTime("2026-01-01T00:00:00Z"),
		IntervalSeconds: 60,
	}
}

func TestCalculate_notStarted(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.StartDatetime = mustTime("2026-01-02T00:00:00Z")
	ref := mustTime("2026-01-01T00:00:00Z")

	status, next, _ := calc.Calculate(job, ref, nil)
	if status != StatusSleeping {
		t.Fatalf("status = %v, want sleeping", status)
	}
	if next == nil || !next.Equal(job.StartDatetime) {
		t.Fatalf("next = %v, want %v", next, job.StartDatetime)
	}
}

func TestCalculate_disabledWins(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.Status = StatusDisabled
	status, next, _ := calc.Calculate(job, mustTime("2026-01-01T01:00:00Z"), nil)
	if status != StatusDisabled || next != nil {
		t.Fatalf("status = %v next = %v, want disabled/nil", status, next)
	}
}

func TestCalculate_gridAlignment(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	ref := mustTime("2026-01-01T00:00:30Z")

	_, next, _ := calc.Calculate(job, ref, nil)
	want := mustTime("2026-01-01T00:01:00Z")
	if next == nil || !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestCalculate_gridDoesNotDrift(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	// refTime lands exactly on a slot boundary; next must be the following slot,
	// not the same one again.
	ref := mustTime("2026-01-01T00:05:00Z")
	_, next, _ := calc.Calculate(job, ref, nil)
	want := mustTime("2026-01-01T00:06:00Z")
	if next == nil || !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestCalculate_completedPastEnd(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	end := mustTime("2026-01-01T00:02:00Z")
	job.EndDatetime = &end

	status, next, _ := calc.Calculate(job, mustTime("2026-01-01T00:02:30Z"), nil)
	if status != StatusCompleted || next != nil {
		t.Fatalf("status = %v next = %v, want completed/nil", status, next)
	}
}

func TestCalculate_pendingPreservedWithinGrace(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	pending := mustTime("2026-01-01T00:10:00Z")
	ref := pending.Add(90 * time.Second) // within 2*interval=120s grace

	status, next, _ := calc.Calculate(job, ref, &pending)
	if status != StatusActive || next == nil || !next.Equal(pending) {
		t.Fatalf("status=%v next=%v, want active/%v", status, next, pending)
	}
}

func TestCalculate_pendingExpiresAfterGrace(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	pending := mustTime("2026-01-01T00:10:00Z")
	ref := pending.Add(121 * time.Second) // outside 120s grace

	status, next, _ := calc.Calculate(job, ref, &pending)
	if status != StatusActive {
		t.Fatalf("status = %v, want active", status)
	}
	if next == nil || next.Equal(pending) {
		t.Fatalf("next should have been recalculated past pending, got %v", next)
	}
}

func TestCalculate_windowMembership(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.IntervalSeconds = 3600
	job.TimeWindowEnabled = true
	job.WindowStart = clock.TimeOfDay{Hour: 8, Minute: 0}
	job.WindowEnd = clock.TimeOfDay{Hour: 20, Minute: 0}

	// Reference time outside the window: job should sleep until window opens.
	ref := mustTime("2026-01-01T22:00:00Z")
	status, next, _ := calc.Calculate(job, ref, nil)
	if status != StatusSleeping {
		t.Fatalf("status = %v, want sleeping", status)
	}
	wantDay := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(wantDay) {
		t.Fatalf("next = %v, want %v", next, wantDay)
	}
}

func TestCalculate_windowCrossingMidnight(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.IntervalSeconds = 3600
	job.TimeWindowEnabled = true
	job.WindowStart = clock.TimeOfDay{Hour: 22, Minute: 0}
	job.WindowEnd = clock.TimeOfDay{Hour: 2, Minute: 0}

	ref := mustTime("2026-01-01T23:00:00Z")
	status, next, _ := calc.Calculate(job, ref, nil)
	if status != StatusActive {
		t.Fatalf("status = %v, want active", status)
	}
	want := mustTime("2026-01-02T00:00:00Z")
	if next == nil || !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestCalculate_windowEndsJobWithoutReentry(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.IntervalSeconds = 3600
	job.TimeWindowEnabled = true
	job.WindowStart = clock.TimeOfDay{Hour: 8, Minute: 0}
	job.WindowEnd = clock.TimeOfDay{Hour: 20, Minute: 0}
	end := mustTime("2026-01-01T21:00:00Z")
	job.EndDatetime = &end

	ref := mustTime("2026-01-01T21:30:00Z")
	status, next, _ := calc.Calculate(job, ref, nil)
	if status != StatusCompleted || next != nil {
		t.Fatalf("status = %v next = %v, want completed/nil", status, next)
	}
}

func TestShouldExecute_rejectsOutsideWindow(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	job.TimeWindowEnabled = true
	job.WindowStart = clock.TimeOfDay{Hour: 8, Minute: 0}
	job.WindowEnd = clock.TimeOfDay{Hour: 20, Minute: 0}

	ok, _ := calc.ShouldExecute(job, mustTime("2026-01-01T21:00:00Z"), mustTime("2026-01-01T21:00:01Z"))
	if ok {
		t.Fatal("expected execution to be rejected outside window")
	}
}

func TestShouldExecute_rejectsAfterEnd(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	end := mustTime("2026-01-01T01:00:00Z")
	job.EndDatetime = &end

	ok, _ := calc.ShouldExecute(job, mustTime("2026-01-01T02:00:00Z"), mustTime("2026-01-01T02:00:01Z"))
	if ok {
		t.Fatal("expected execution to be rejected past end")
	}
}

func TestShouldExecute_acceptsValid(t *testing.T) {
	calc := NewCalculator(clock.New("UTC"))
	job := baseJob()
	ok, _ := calc.ShouldExecute(job, mustTime("2026-01-01T00:05:00Z"), mustTime("2026-01-01T00:05:01Z"))
	if !ok {
		t.Fatal("expected valid capture to be accepted")
	}
}
