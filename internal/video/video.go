// Package video assembles a timelapse MP4 from a job's captured frames via
// ffmpeg's concat demuxer, tracking progress into the store as it runs.
// Ported from the source project's video_processor.process_video.
package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kernelkaribou/timelapse-manager/internal/metrics"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

var qualityCRF = map[string]string{
	"low":      "28",
	"medium":   "23",
	"high":     "18",
	"lossless": "0",
}

func crfFor(quality string) string {
	if crf, ok := qualityCRF[quality]; ok {
		return crf
	}
	return "23"
}

// Assembler renders processed_videos rows via an external ffmpeg binary.
type Assembler struct {
	Store      *store.Store
	FFmpegPath string
}

// NewAssembler builds an Assembler. ffmpegPath defaults to "ffmpeg".
func NewAssembler(st *store.Store, ffmpegPath string) *Assembler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Assembler{Store: st, FFmpegPath: ffmpegPath}
}

// Request describes one video-assembly job.
type Request struct {
	VideoID      int64
	JobID        int64
	Resolution   string // "WxH", e.g. "1920x1080"
	Framerate    int
	Quality      string
	CaptureRange store.CaptureRange
	OutputPath   string
}

// Run builds the video named by req and writes its final state (completed or
// failed) back through the store. It's meant to run on its own goroutine —
// errors are recorded on the video row, not returned to a caller that has
// already moved on. When a step fails, the row is marked failed and Run
// returns that step's error (wrapped with the store error if even the
// failure could not be recorded). A nil return means the video completed,
// or that the range held no captures and the row was marked failed.
func (a *Assembler) Run(ctx context.Context, req Request) error {
	runStart := time.Now()
	jobLabel := strconv.FormatInt(req.JobID, 10)
	defer func() { metrics.VideoAssemblyDuration.WithLabelValues(jobLabel).Observe(time.Since(runStart).Seconds()) }()

	captures, err := a.Store.ListCapturesInRange(ctx, req.JobID, req.CaptureRange)
	if err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("list captures: %w", err))
	}
	if len(captures) == 0 {
		return a.Store.UpdateVideoProgress(ctx, req.VideoID, "failed", 0, 0)
	}
	totalFrames := len(captures)

	listFile, err := writeConcatList(captures, req.Framerate)
	if err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("build concat list: %w", err))
	}
	defer os.Remove(listFile)

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("create output dir: %w", err))
	}

	args := []string{
		"-loglevel", "info",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vf", "scale=" + req.Resolution,
		"-r", strconv.Itoa(req.Framerate),
		"-c:v", "libx264",
		"-crf", crfFor(req.Quality),
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-y", req.OutputPath,
	}

	cmd := exec.CommandContext(ctx, a.FFmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("attach stderr: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("start ffmpeg: %w", err))
	}

	a.trackProgress(ctx, req.VideoID, stderr, totalFrames)

	if err := cmd.Wait(); err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("ffmpeg: %w", err))
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return a.fail(ctx, req.VideoID, fmt.Errorf("output missing after encode: %w", err))
	}

	duration := float64(totalFrames) / float64(req.Framerate)
	return a.Store.CompleteVideo(ctx, req.VideoID, info.Size(), totalFrames, duration)
}

func (a *Assembler) fail(ctx context.Context, videoID int64, cause error) error {
	if err := a.Store.UpdateVideoProgress(ctx, videoID, "failed", 0, 0); err != nil {
		return fmt.Errorf("record failure (%v): %w", cause, err)
	}
	return cause
}

// trackProgress reads ffmpeg's "frame=" progress lines off stderr and
// updates the video's stored progress percentage (0-100) as frames complete. It never
// returns an error: a malformed progress line is simply skipped, same as the
// bare except in _update_progress's caller.
func (a *Assembler) trackProgress(ctx context.Context, videoID int64, stderr io.Reader, totalFrames int) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "frame=")
		if idx == -1 {
			continue
		}
		fields := strings.Fields(line[idx+len("frame="):])
		if len(fields) == 0 {
			continue
		}
		current, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		progress := float64(current) / float64(totalFrames) * 100
		if progress > 100 {
			progress = 100
		}
		_ = a.Store.UpdateVideoProgress(ctx, videoID, "processing", progress, 0)
	}
}

// writeConcatList renders the ffmpeg concat demuxer input file. The name is
// a uuid rather than os.CreateTemp's own random suffix so that multiple
// Assembler instances across a cluster of workers (or repeated runs against
// a shared /tmp) can never collide, matching process_video's
// tempfile.NamedTemporaryFile intent without relying on the OS's name
// generator alone.
func writeConcatList(captures []*store.Capture, framerate int) (string, error) {
	name := filepath.Join(os.TempDir(), fmt.Sprintf("timelapse-concat-%s.txt", uuid.NewString()))
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	frameDuration := 1.0 / float64(framerate)
	w := bufio.NewWriter(f)
	for _, c := range captures {
		fmt.Fprintf(w, "file '%s'\n", escapeConcatPath(c.FilePath))
		fmt.Fprintf(w, "duration %f\n", frameDuration)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// escapeConcatPath escapes single quotes for ffmpeg's concat demuxer file
// directive, which itself uses single-quoted, backslash-escaped strings.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, `'`, `'\''`)
}
