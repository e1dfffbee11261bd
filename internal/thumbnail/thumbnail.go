// Package thumbnail generates small preview images for captures. It shells
// out to ffmpeg's scale filter rather than decoding/re-encoding in process:
// the source project offers both a Pillow-based path and an ffmpeg-based
// alternative (generate_thumbnail_ffmpeg in thumbnail_generator.py), and
// ffmpeg is already the one binary this module depends on for every other
// image operation (see internal/capture). Keeping thumbnailing on the same
// binary avoids adding an image-codec dependency for a single concern.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/pathing"
)

const (
	width          = 384
	height         = 216
	quality        = "2" // ffmpeg -q:v scale roughly matching Pillow's quality=75 for webp
	defaultTimeout = 10 * time.Second
)

// Generator renders thumbnails via an external ffmpeg binary.
type Generator struct {
	FFmpegPath string
	Timeout    time.Duration
}

// NewGenerator builds a Generator. ffmpegPath defaults to "ffmpeg" and
// timeout to 10s, mirroring generate_thumbnail_ffmpeg's subprocess timeout.
func NewGenerator(ffmpegPath string, timeout time.Duration) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{FFmpegPath: ffmpegPath, Timeout: timeout}
}

// Path returns where the thumbnail for imagePath belongs, given the job's
// capture directory root.
func Path(jobCaptureDir, imagePath string) string {
	return pathing.ThumbnailPath(jobCaptureDir, imagePath)
}

// Ensure generates the thumbnail for imagePath if it doesn't already exist
// (or force is set), returning the thumbnail's path. Mirrors
// generate_thumbnail_ffmpeg's skip-if-present behavior.
func (g *Generator) Ensure(ctx context.Context, jobCaptureDir, imagePath string, force bool) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("thumbnail: source image not found: %s", imagePath)
	}

	thumbPath := Path(jobCaptureDir, imagePath)
	if !force {
		if _, err := os.Stat(thumbPath); err == nil {
			return thumbPath, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(thumbPath), 0o755); err != nil {
		return "", fmt.Errorf("thumbnail: create dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height)
	args := []string{
		"-loglevel", "error",
		"-i", imagePath,
		"-vf", scale,
		"-q:v", quality,
		"-frames:v", "1",
		"-y", thumbPath,
	}

	cmd := exec.CommandContext(ctx, g.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("thumbnail: generation timed out for %s", imagePath)
		}
		return "", fmt.Errorf("thumbnail: ffmpeg failed for %s: %w: %s", imagePath, err, string(output))
	}

	return thumbPath, nil
}

// Delete removes the thumbnail for imagePath, if any. A missing thumbnail is
// not an error.
func Delete(jobCaptureDir, imagePath string) error {
	thumbPath := Path(jobCaptureDir, imagePath)
	if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("thumbnail: delete %s: %w", thumbPath, err)
	}
	return nil
}

// Exists reports whether a thumbnail has already been generated.
func Exists(jobCaptureDir, imagePath string) bool {
	_, err := os.Stat(Path(jobCaptureDir, imagePath))
	return err == nil
}
