package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
	"github.com/kernelkaribou/timelapse-manager/internal/clock"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	calc := NewCalculator(clock.New("UTC"))
	grabber := capture.NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	exec := capture.NewExecutor(st, grabber, nil, 2)
	sched := New(st, calc, exec, time.Hour)
	return sched, st
}

func TestReconcile_transitionsNotStartedToActive(t *testing.T) {
	ctx := context.Background()
	sched, st := newTestScheduler(t)

	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "driveway",
		URL:             "http://cam.local/snap.jpg",
		StreamType:      "http",
		StartDatetime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
		Framerate:       30,
		Status:          "sleeping",
		CapturePath:     t.TempDir(),
		NamingPattern:   "{job_name}_{num:06d}_{timestamp}",
	})
	if err != nil {
		t.Fatal(err)
	}

	sched.tick(ctx)

	got, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "active" {
		t.Errorf("status = %q, want %q after reconcile of a started job", got.Status, "active")
	}
	if got.NextScheduledCaptureAt == nil {
		t.Fatal("expected next_scheduled_capture_at to be set after reconcile")
	}
}

func TestTick_dispatchesDueCaptureAndRecoversFromFailure(t *testing.T) {
	ctx := context.Background()
	sched, st := newTestScheduler(t)

	past := time.Now().UTC().Add(-time.Hour)
	id, err := st.CreateJob(ctx, &store.Job{
		Name:            "driveway",
		URL:             "http://cam.local/snap.jpg",
		StreamType:      "http",
		StartDatetime:   past,
		IntervalSeconds: 60,
		Framerate:       30,
		Status:          "active",
		CapturePath:     t.TempDir(),
		NamingPattern:   "{job_name}_{num:06d}_{timestamp}",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Seed a grid slot about a minute old, inside the 2*interval grace
	// period, so the first tick dispatches it. The fake ffmpeg binary makes
	// the capture fail; the tick must record that and move the schedule on
	// to the next slot rather than crash, and later ticks keep running.
	due := past.Add(59 * time.Minute)
	if err := st.UpdateSchedule(ctx, id, "active", &due, false); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		sched.tick(ctx)
	}

	got, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status == "" {
		t.Fatal("expected job to retain a status after repeated ticks")
	}
	if got.NextScheduledCaptureAt == nil || !got.NextScheduledCaptureAt.After(due) {
		t.Errorf("next_scheduled_capture_at = %v, want a slot after the dispatched %v", got.NextScheduledCaptureAt, due)
	}
}
