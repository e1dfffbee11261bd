package capture

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestJobRow(t *testing.T, st *store.Store, capturePath string) int64 {
	t.Helper()
	id, err := st.CreateJob(context.Background(), &store.Job{
		Name:            "driveway",
		URL:             "http://cam.local/snap.jpg",
		StreamType:      "http",
		StartDatetime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
		Framerate:       30,
		Status:          "active",
		CapturePath:     capturePath,
		NamingPattern:   "{job_name}_{num:06d}_{timestamp}",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return id
}

func TestExecutor_recordFailure_setsWarningAfterThreshold(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	dir := t.TempDir()
	jobID := newTestJobRow(t, st, dir)

	grabber := NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	exec := NewExecutor(st, grabber, nil, 2)

	j := Job{ID: jobID, Name: "driveway", URL: "http://cam.local/snap.jpg", StreamType: "http", CapturePath: dir, NamingPattern: "{job_name}_{num:06d}_{timestamp}"}

	for i := 0; i < consecutiveFailureThreshold; i++ {
		exec.execute(ctx, j, time.Now())
	}

	row, err := st.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if row.WarningMessage == nil {
		t.Fatal("expected warning_message to be set after threshold consecutive failures")
	}
}

func TestExecutor_recordFailure_noWarningBelowThreshold(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	dir := t.TempDir()
	jobID := newTestJobRow(t, st, dir)

	grabber := NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	exec := NewExecutor(st, grabber, nil, 2)

	j := Job{ID: jobID, Name: "driveway", URL: "http://cam.local/snap.jpg", StreamType: "http", CapturePath: dir, NamingPattern: "{job_name}_{num:06d}_{timestamp}"}
	exec.execute(ctx, j, time.Now())

	row, err := st.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if row.WarningMessage != nil {
		t.Errorf("expected no warning_message after a single failure, got %q", *row.WarningMessage)
	}
}

func TestExecutor_RunAll_dispatchesAllJobs(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	dir := t.TempDir()

	grabber := NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	exec := NewExecutor(st, grabber, nil, 2)

	var jobs []Job
	for i := 0; i < 3; i++ {
		id := newTestJobRow(t, st, dir)
		jobs = append(jobs, Job{ID: id, Name: "driveway", URL: "http://cam.local/snap.jpg", StreamType: "http", CapturePath: dir, NamingPattern: "{job_name}_{num:06d}_{timestamp}"})
	}

	exec.RunAll(ctx, jobs, time.Now())

	for _, j := range jobs {
		row, err := st.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatal(err)
		}
		if row.WarningMessage != nil {
			t.Errorf("job %d: unexpected warning after single failed attempt: %q", j.ID, *row.WarningMessage)
		}
		if n := exec.failureCounts[j.ID]; n != 1 {
			t.Errorf("job %d: failure count = %d, want 1 (one dispatched attempt)", j.ID, n)
		}
	}
}
