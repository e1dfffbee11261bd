package capture

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kernelkaribou/timelapse-manager/internal/metrics"
	"github.com/kernelkaribou/timelapse-manager/internal/pathing"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
	"github.com/kernelkaribou/timelapse-manager/internal/thumbnail"
)

// defaultRateLimit caps how many ffmpeg invocations the executor starts per
// second across all jobs combined, independent of the concurrency semaphore:
// concurrency bounds how many run at once, this bounds how fast new ones are
// allowed to start, so a scheduler tick that suddenly has 200 due jobs can't
// all exec() in the same instant.
const defaultRateLimit = 20

// consecutiveFailureThreshold is how many failures in a row must occur
// before a job's warning_message is set, matching capture_scheduler.py's
// "(after {N} consecutive failures)" behavior — a single blip doesn't
// surface a warning to the user.
const consecutiveFailureThreshold = 3

// Executor runs scheduled captures against a bounded worker pool. One
// Executor serves every job; per-job state (failure streaks) is tracked in
// memory exactly as CaptureScheduler.failure_counts is in the source
// project — it resets on every process restart, which is intentional: a
// fresh process deserves a fresh 3-strike count.
type Executor struct {
	Store      *store.Store
	Grabber    *Grabber
	Thumbnails *thumbnail.Generator

	concurrency int
	limiter     *rate.Limiter

	mu            sync.Mutex
	failureCounts map[int64]int
}

// NewExecutor builds an Executor whose worker pool never runs more than
// concurrency captures at once (default 5, matching
// ThreadPoolExecutor(max_workers=5) in the source project), and whose
// ffmpeg invocation rate is capped at defaultRateLimit/s with a burst equal
// to concurrency. thumbs generates a preview right after each successful
// capture, matching image_capture.py's generate_thumbnail call.
func NewExecutor(st *store.Store, grabber *Grabber, thumbs *thumbnail.Generator, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Executor{
		Store:         st,
		Grabber:       grabber,
		Thumbnails:    thumbs,
		concurrency:   concurrency,
		limiter:       rate.NewLimiter(rate.Limit(defaultRateLimit), concurrency),
		failureCounts: make(map[int64]int),
	}
}

// Job is the narrow view Execute needs from a store.Job.
type Job struct {
	ID            int64
	Name          string
	URL           string
	StreamType    string
	CapturePath   string
	NamingPattern string
	CaptureCount  int
}

// RunAll executes captures for every job in jobs concurrently, bounded by
// the executor's worker pool, and blocks until all have completed — the
// same fan-out-then-join shape as
// CaptureScheduler._execute_captures_parallel's ThreadPoolExecutor +
// as_completed, rebuilt with a semaphore channel the way the teacher's
// internal/sdtprobe/worker.go sweep() bounds concurrent probes.
func (e *Executor) RunAll(ctx context.Context, jobs []Job, captureTime time.Time) {
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for _, j := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			e.execute(ctx, j, captureTime)
		}(j)
	}
	wg.Wait()
}

// execute performs a single capture, recording success/failure and updating
// the job's warning_message once 3 consecutive failures have accumulated.
func (e *Executor) execute(ctx context.Context, j Job, capturedAt time.Time) {
	start := time.Now()
	outcome := e.capture(ctx, j, capturedAt)
	metrics.ObserveCapture(j.Name, outcome == nil, time.Since(start))
	if outcome == nil {
		e.recordSuccess(j)
		return
	}
	e.recordFailure(ctx, j, outcome)
}

func (e *Executor) capture(ctx context.Context, j Job, capturedAt time.Time) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return &Error{Class: ClassUnexpected, Msg: fmt.Sprintf("rate limit wait: %v", err)}
	}

	filename := pathing.FormatFilename(j.NamingPattern, j.Name, j.CaptureCount+1, capturedAt)
	dir := pathing.CaptureDir(j.CapturePath, capturedAt)
	outputPath := dir + string(os.PathSeparator) + filename + ".jpg"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Class: ClassWritePermission, Msg: fmt.Sprintf("cannot create capture directory: %v", err)}
	}

	if err := e.Grabber.GrabFrame(ctx, j.StreamType, j.URL, outputPath); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return &Error{Class: ClassUnexpected, Msg: fmt.Sprintf("capture reported success but file is missing: %v", err)}
	}

	if _, err := e.Store.RecordCapture(ctx, j.ID, outputPath, info.Size(), capturedAt); err != nil {
		return &Error{Class: ClassUnexpected, Msg: fmt.Sprintf("failed to record capture: %v", err)}
	}

	if e.Thumbnails != nil {
		if _, err := e.Thumbnails.Ensure(ctx, j.CapturePath, outputPath, false); err != nil {
			log.Printf("capture: job %d (%s): thumbnail generation failed: %v", j.ID, j.Name, err)
		}
	}

	return nil
}

func (e *Executor) recordSuccess(j Job) {
	e.mu.Lock()
	e.failureCounts[j.ID] = 0
	e.mu.Unlock()
	metrics.ConsecutiveFailures.WithLabelValues(j.Name).Set(0)
}

func (e *Executor) recordFailure(ctx context.Context, j Job, outcome error) {
	e.mu.Lock()
	e.failureCounts[j.ID]++
	n := e.failureCounts[j.ID]
	e.mu.Unlock()
	metrics.ConsecutiveFailures.WithLabelValues(j.Name).Set(float64(n))

	log.Printf("capture: job %d (%s) failed: %v (failure %d/%d)", j.ID, j.Name, outcome, n, consecutiveFailureThreshold)

	if n < consecutiveFailureThreshold {
		if err := e.Store.SetWarning(ctx, j.ID, nil); err != nil {
			log.Printf("capture: job %d: clear warning: %v", j.ID, err)
		}
		return
	}

	msg := fmt.Sprintf("%s (after %d consecutive failures)", outcome.Error(), n)
	if err := e.Store.SetWarning(ctx, j.ID, &msg); err != nil {
		log.Printf("capture: job %d: set warning: %v", j.ID, err)
	}
}
