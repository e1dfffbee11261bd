package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "timelapse-manager.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestJob() *Job {
	return &Job{
		Name:            "driveway",
		URL:             "rtsp://cam.local/stream",
		StreamType:      "rtsp",
		StartDatetime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IntervalSeconds: 60,
		Framerate:       30,
		Status:          "active",
		CapturePath:     "/captures/driveway",
		NamingPattern:   "{job_name}_{num:06d}_{timestamp}",
	}
}

func TestCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.CreateJob(ctx, newTestJob())
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Name != "driveway" || got.Status != "active" {
		t.Errorf("unexpected job: %+v", got)
	}
	if !got.StartDatetime.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDatetime = %v", got.StartDatetime)
	}
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.CreateJob(ctx, newTestJob()); err != nil {
		t.Fatal(err)
	}
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
}

func TestUpdateSchedule(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.CreateJob(ctx, newTestJob())
	next := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	if err := s.UpdateSchedule(ctx, id, "active", &next, true); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.NextScheduledCaptureAt == nil || !got.NextScheduledCaptureAt.Equal(next) {
		t.Errorf("NextScheduledCaptureAt = %v, want %v", got.NextScheduledCaptureAt, next)
	}
}

func TestRecordCapture_updatesJobStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.CreateJob(ctx, newTestJob())
	if _, err := s.RecordCapture(ctx, id, "/captures/driveway/2026/01/01/00/a.jpg", 1024, time.Now()); err != nil {
		t.Fatalf("RecordCapture: %v", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.CaptureCount != 1 {
		t.Errorf("CaptureCount = %d, want 1", got.CaptureCount)
	}
	if got.StorageSize != 1024 {
		t.Errorf("StorageSize = %d, want 1024", got.StorageSize)
	}

	n, err := s.CountCaptures(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountCaptures = %d, want 1", n)
	}
}

func TestListSchedulable_excludesDisabled(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	job := newTestJob()
	job.Status = "disabled"
	if _, err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListSchedulable(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListSchedulable: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected disabled job to be excluded, got %d results", len(jobs))
	}
}

func TestDeleteCapturesForJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.CreateJob(ctx, newTestJob())
	if _, err := s.RecordCapture(ctx, id, "/a.jpg", 100, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordCapture(ctx, id, "/b.jpg", 200, time.Now()); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteCapturesForJob(ctx, id)
	if err != nil {
		t.Fatalf("DeleteCapturesForJob: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("len(deleted) = %d, want 2", len(deleted))
	}

	n, err := s.CountCaptures(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountCaptures after delete = %d, want 0", n)
	}
}

func TestPatchJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.CreateJob(ctx, newTestJob())
	if err := s.PatchJob(ctx, id, map[string]any{"name": "backyard", "framerate": 15}); err != nil {
		t.Fatalf("PatchJob: %v", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "backyard" || got.Framerate != 15 {
		t.Errorf("unexpected job after patch: %+v", got)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.GetSetting(ctx, "default_captures_path"); err != nil || ok {
		t.Fatalf("expected unset setting, got ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "default_captures_path", "/captures"); err != nil {
		t.Fatal(err)
	}
	val, ok, err := s.GetSetting(ctx, "default_captures_path")
	if err != nil || !ok || val != "/captures" {
		t.Errorf("GetSetting = %q, %v, %v", val, ok, err)
	}
}

func TestVideoLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	jobID, _ := s.CreateJob(ctx, newTestJob())
	videoID, err := s.CreateVideo(ctx, &Video{
		JobID:           jobID,
		Name:            "january",
		FilePath:        "/timelapses/driveway/january.mp4",
		Resolution:      "1920x1080",
		Framerate:       30,
		Quality:         "high",
		TotalFrames:     100,
		DurationSeconds: 3.33,
		Status:          "processing",
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}

	if err := s.UpdateVideoProgress(ctx, videoID, "completed", 1.0, 5_000_000); err != nil {
		t.Fatalf("UpdateVideoProgress: %v", err)
	}

	got, err := s.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.CompletedAt == nil {
		t.Errorf("unexpected video after completion: %+v", got)
	}

	videos, err := s.ListVideos(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 1 {
		t.Fatalf("len(videos) = %d, want 1", len(videos))
	}
}
