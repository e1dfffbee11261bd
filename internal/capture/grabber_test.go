package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGrabFrame_missingBinary(t *testing.T) {
	g := NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	err := g.GrabFrame(context.Background(), "http", "http://example.invalid/stream", "/tmp/out.jpg")
	if err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestNewGrabber_defaults(t *testing.T) {
	g := NewGrabber("", 0)
	if g.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want ffmpeg", g.FFmpegPath)
	}
	if g.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", g.Timeout)
	}
}
