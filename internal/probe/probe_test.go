package probe

import (
	"context"
	"testing"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
)

func TestDetectStreamType(t *testing.T) {
	cases := map[string]string{
		"rtsp://cam.local/stream":  "rtsp",
		"RTSP://cam.local/stream":  "rtsp",
		"http://cam.local/snap.jpg": "http",
		"https://cam.local/snap":    "http",
	}
	for url, want := range cases {
		if got := DetectStreamType(url); got != want {
			t.Errorf("DetectStreamType(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestTest_failsGracefullyOnBadBinary(t *testing.T) {
	g := capture.NewGrabber("definitely-not-a-real-ffmpeg-binary-xyz", time.Second)
	tester := NewTester(g)

	result := tester.Test(context.Background(), "http://example.invalid/stream", "")
	if result.Success {
		t.Fatal("expected failure with a nonexistent ffmpeg binary")
	}
	if result.Message == "" {
		t.Error("expected a message explaining the failure")
	}
}
