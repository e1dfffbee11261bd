package maintenance

import (
	"context"
	"os"
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

func newTestJob(t *testing.T, st *store.Store, capturePath string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.CreateJob(ctx, &store.Job{
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

func TestExtractTimestampFromFile_filenamePattern(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driveway_20260115_134500.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	got := ExtractTimestampFromFile(path)
	want := time.Date(2026, 1, 15, 13, 45, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("ExtractTimestampFromFile = %v, want %v", got, want)
	}
}

func TestExtractTimestampFromFile_fallsBackToModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unrelated.jpg")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	got := ExtractTimestampFromFile(path)
	if got.IsZero() {
		t.Error("expected non-zero fallback timestamp")
	}
}

func TestScan_findsMissingAndOrphaned(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t)
	jobID := newTestJob(t, st, dir)

	existingPath := filepath.Join(dir, "exists.jpg")
	if err := os.WriteFile(existingPath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RecordCapture(ctx, jobID, existingPath, 4, time.Now()); err != nil {
		t.Fatal(err)
	}

	missingPath := filepath.Join(dir, "gone.jpg")
	if _, err := st.RecordCapture(ctx, jobID, missingPath, 10, time.Now()); err != nil {
		t.Fatal(err)
	}

	orphanPath := filepath.Join(dir, "orphan_20260115_120000.jpg")
	if err := os.WriteFile(orphanPath, []byte("orphan"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Scan(ctx, st, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if result.ExistingCount != 1 {
		t.Errorf("ExistingCount = %d, want 1", result.ExistingCount)
	}
	if len(result.MissingFiles) != 1 || result.MissingFiles[0].FilePath != missingPath {
		t.Errorf("MissingFiles = %+v, want one entry for %s", result.MissingFiles, missingPath)
	}
	if len(result.OrphanedFiles) != 1 || result.OrphanedFiles[0].FilePath != orphanPath {
		t.Errorf("OrphanedFiles = %+v, want one entry for %s", result.OrphanedFiles, orphanPath)
	}
}

func TestCleanupMissing_removesRowsAndRecalculatesStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t)
	jobID := newTestJob(t, st, dir)

	missingID, err := st.RecordCapture(ctx, jobID, filepath.Join(dir, "gone.jpg"), 100, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	result, err := CleanupMissing(ctx, st, jobID, []int64{missingID})
	if err != nil {
		t.Fatal(err)
	}
	if result.DeletedCount != 1 || result.SizeRecovered != 100 {
		t.Errorf("CleanupMissing result = %+v", result)
	}
	if result.NewCaptureCount != 0 {
		t.Errorf("NewCaptureCount = %d, want 0", result.NewCaptureCount)
	}
}

func TestImportOrphaned_skipsVanishedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t)
	jobID := newTestJob(t, st, dir)

	presentPath := filepath.Join(dir, "present.jpg")
	if err := os.WriteFile(presentPath, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	files := []OrphanedFile{
		{FilePath: presentPath, FileSize: 4, CapturedAt: time.Now()},
		{FilePath: filepath.Join(dir, "vanished.jpg"), FileSize: 5, CapturedAt: time.Now()},
	}

	result, err := ImportOrphaned(ctx, st, jobID, files)
	if err != nil {
		t.Fatal(err)
	}
	if result.ImportedCount != 1 {
		t.Errorf("ImportedCount = %d, want 1", result.ImportedCount)
	}
	if result.NewCaptureCount != 1 {
		t.Errorf("NewCaptureCount = %d, want 1", result.NewCaptureCount)
	}
}
