// Package probe implements the ad-hoc "test this stream URL" endpoint (C6):
// grab one frame synchronously with a short timeout and hand the caller
// back a base64-encoded preview, without touching the database or the
// scheduled-capture path.
//
// Rewritten from the teacher's HTTP content-sniffing probe (which detected
// MP4/HLS/TS by Content-Type and magic bytes) into an ffmpeg-based probe,
// since this service's streams are RTSP/HTTP camera feeds rather than VOD
// assets — the only reliable way to know a camera URL actually yields a
// frame is to ask ffmpeg to decode one, the same approach as the source
// project's url_tester.test_stream_url.
package probe

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
)

// Result is the outcome of testing a stream URL.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ImageData string `json:"image_data,omitempty"` // data URI, e.g. "data:image/jpeg;base64,...."
	ImageSize int64  `json:"image_size,omitempty"`
}

// Tester probes candidate stream URLs before a job is created.
type Tester struct {
	Grabber *capture.Grabber
}

// NewTester builds a Tester around an existing frame grabber so probing
// shares the exact ffmpeg invocation scheduled captures use.
func NewTester(g *capture.Grabber) *Tester {
	return &Tester{Grabber: g}
}

// DetectStreamType guesses "rtsp" or "http" from the URL scheme when the
// caller didn't specify one, mirroring test_stream_url's auto-detection.
func DetectStreamType(url string) string {
	if strings.HasPrefix(strings.ToLower(url), "rtsp://") {
		return "rtsp"
	}
	return "http"
}

// Test attempts to capture one frame from url into a temp file, reports
// success/failure, and returns the frame as a base64 data URI on success.
// The temp file is always removed before returning.
func (t *Tester) Test(ctx context.Context, url, streamType string) Result {
	if streamType == "" {
		streamType = DetectStreamType(url)
	}

	tmp, err := os.CreateTemp("", "timelapse-test-*.jpg")
	if err != nil {
		return Result{Success: false, Message: "Error: could not allocate a temp file for the test capture"}
	}
	outputPath := tmp.Name()
	tmp.Close()
	defer os.Remove(outputPath)

	if err := t.Grabber.GrabFrame(ctx, streamType, url, outputPath); err != nil {
		return Result{Success: false, Message: "Error: please check the URL. " + truncate(err.Error(), 100)}
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return Result{Success: false, Message: "Error: capture reported success but the image could not be read"}
	}

	return Result{
		Success:   true,
		Message:   "Successfully captured test image",
		ImageData: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		ImageSize: int64(len(data)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
