package thumbnail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsure_missingSourceImage(t *testing.T) {
	dir := t.TempDir()
	g := NewGenerator("ffmpeg", time.Second)
	_, err := g.Ensure(context.Background(), dir, filepath.Join(dir, "nope.jpg"), false)
	if err == nil {
		t.Fatal("expected error for missing source image")
	}
}

func TestEnsure_missingBinary(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(imagePath, []byte("not a real jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	_, err := g.Ensure(context.Background(), dir, imagePath, false)
	if err == nil {
		t.Fatal("expected error when ffmpeg binary is missing")
	}
}

func TestEnsure_skipsWhenAlreadyPresentAndNotForced(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(imagePath, []byte("not a real jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	thumbPath := Path(dir, imagePath)
	if err := os.MkdirAll(filepath.Dir(thumbPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(thumbPath, []byte("existing thumb"), 0644); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	got, err := g.Ensure(context.Background(), dir, imagePath, false)
	if err != nil {
		t.Fatalf("expected no error when thumbnail already exists, got %v", err)
	}
	if got != thumbPath {
		t.Errorf("Ensure returned %q, want %q", got, thumbPath)
	}
}

func TestDelete_missingIsNotError(t *testing.T) {
	dir := t.TempDir()
	if err := Delete(dir, filepath.Join(dir, "frame.jpg")); err != nil {
		t.Errorf("Delete on missing thumbnail should not error: %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "frame.jpg")
	if Exists(dir, imagePath) {
		t.Error("Exists should be false before generation")
	}
	thumbPath := Path(dir, imagePath)
	if err := os.MkdirAll(filepath.Dir(thumbPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(thumbPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir, imagePath) {
		t.Error("Exists should be true after creation")
	}
}
