package scheduler

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
	"github.com/kernelkaribou/timelapse-manager/internal/clock"
	"github.com/kernelkaribou/timelapse-manager/internal/metrics"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

// Scheduler runs the periodic tick loop (C5): reconcile every schedulable
// job's status, dispatch the ones whose capture time has arrived, and
// recompute state for whatever just ran. Grounded in
// capture_scheduler.CaptureScheduler's three-phase _check_and_capture and in
// the teacher's internal/sdtprobe/worker.go Run loop (ticker + per-sweep
// bounded dispatch, context-cancellable throughout).
type Scheduler struct {
	Store    *store.Store
	Calc     *Calculator
	Executor *capture.Executor

	TickInterval time.Duration

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New builds a Scheduler. TickInterval defaults to 10s, matching the source
// project's _run_loop sleep.
func New(st *store.Store, calc *Calculator, exec *capture.Executor, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 10 * time.Second
	}
	return &Scheduler{
		Store:        st,
		Calc:         calc,
		Executor:     exec,
		TickInterval: tickInterval,
		inFlight:     make(map[int64]bool),
	}
}

// Run blocks, ticking every TickInterval until ctx is canceled. Each tick's
// errors are logged rather than fatal, so a single bad query doesn't kill
// the scheduler — the same posture as _run_loop's try/except around
// _check_and_capture.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: started (tick interval %s)", s.TickInterval)

	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Print("scheduler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// ToSchedulerJob builds the narrow Job view Calculator needs from a full
// store.Job row. Exported so the HTTP layer can run the same Calculate call
// the scheduler's own tick loop uses — e.g. to compute a freshly created
// job's initial status without waiting for the next tick.
func ToSchedulerJob(j *store.Job) (Job, error) {
	return storeJobToSchedulerJob(j)
}

func storeJobToSchedulerJob(j *store.Job) (Job, error) {
	sj := Job{
		ID:              j.ID,
		Status:          Status(j.Status),
		StartDatetime:   j.StartDatetime,
		EndDatetime:     j.EndDatetime,
		IntervalSeconds: j.IntervalSeconds,
	}
	if j.TimeWindowEnabled && j.TimeWindowStart != nil && j.TimeWindowEnd != nil {
		start, err := clock.ParseTimeOfDay(*j.TimeWindowStart)
		if err != nil {
			return Job{}, err
		}
		end, err := clock.ParseTimeOfDay(*j.TimeWindowEnd)
		if err != nil {
			return Job{}, err
		}
		sj.TimeWindowEnabled = true
		sj.WindowStart = start
		sj.WindowEnd = end
	}
	return sj, nil
}

// tick runs the three phases of a single scheduling pass.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: tick panic: %v\n%s", r, debug.Stack())
		}
	}()
	start := time.Now()
	defer func() { metrics.ObserveTick(time.Since(start)) }()

	now := s.Calc.Clock.Now()

	rows, err := s.Store.ListSchedulable(ctx, now)
	if err != nil {
		log.Printf("scheduler: list schedulable jobs: %v", err)
		return
	}

	// Phase 1: reconcile status for every schedulable job.
	for _, row := range rows {
		s.reconcile(ctx, row, now)
	}

	// Phase 2: collect jobs whose capture time has arrived and aren't
	// already running.
	var ready []capture.Job
	var readyCapturedAt = now
	s.mu.Lock()
	for _, row := range rows {
		if row.Status != "active" || row.NextScheduledCaptureAt == nil {
			continue
		}
		if now.Before(*row.NextScheduledCaptureAt) {
			continue
		}
		sj, err := storeJobToSchedulerJob(row)
		if err != nil {
			log.Printf("scheduler: job %d: %v", row.ID, err)
			continue
		}
		ok, reason := s.Calc.ShouldExecute(sj, *row.NextScheduledCaptureAt, now)
		if !ok {
			log.Printf("scheduler: job %d (%s): skipping capture: %s", row.ID, row.Name, reason)
			continue
		}
		if s.inFlight[row.ID] {
			log.Printf("scheduler: job %d (%s): skipping capture (already in progress)", row.ID, row.Name)
			continue
		}
		s.inFlight[row.ID] = true
		metrics.JobsInFlight.Set(float64(len(s.inFlight)))
		ready = append(ready, capture.Job{
			ID:            row.ID,
			Name:          row.Name,
			URL:           row.URL,
			StreamType:    row.StreamType,
			CapturePath:   row.CapturePath,
			NamingPattern: row.NamingPattern,
			CaptureCount:  row.CaptureCount,
		})
	}
	s.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	// Phase 3: execute captures in parallel, then recompute each job's state.
	s.Executor.RunAll(ctx, ready, readyCapturedAt)

	for _, job := range ready {
		s.finishCapture(ctx, job.ID, readyCapturedAt)
	}
}

// reconcile re-derives a job's status/next-capture and writes it back if
// anything changed, mirroring _update_job_status's change-detection.
func (s *Scheduler) reconcile(ctx context.Context, row *store.Job, now time.Time) {
	sj, err := storeJobToSchedulerJob(row)
	if err != nil {
		log.Printf("scheduler: job %d: %v", row.ID, err)
		return
	}

	newStatus, next, reason := s.Calc.Calculate(sj, now, row.NextScheduledCaptureAt)

	statusChanged := string(newStatus) != row.Status
	nextChanged := !timePtrEqual(next, row.NextScheduledCaptureAt)
	shouldClearWarning := row.WarningMessage != nil && (newStatus == StatusSleeping || newStatus == StatusCompleted || newStatus == StatusDisabled)

	if !statusChanged && !nextChanged && !shouldClearWarning {
		return
	}

	if err := s.Store.UpdateSchedule(ctx, row.ID, string(newStatus), next, shouldClearWarning); err != nil {
		log.Printf("scheduler: job %d: update schedule: %v", row.ID, err)
		return
	}
	if statusChanged {
		log.Printf("scheduler: job %d (%s) status: %s -> %s (%s)", row.ID, row.Name, row.Status, newStatus, reason)
	}
}

// finishCapture recomputes state for a job that just ran a capture attempt
// (success or failure) with no pending capture, then releases it from the
// in-flight set. Mirrors the `finally` block in
// capture_scheduler._execute_single_capture.
func (s *Scheduler) finishCapture(ctx context.Context, jobID int64, capturedAt time.Time) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, jobID)
		metrics.JobsInFlight.Set(float64(len(s.inFlight)))
		s.mu.Unlock()
	}()

	row, err := s.Store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("scheduler: job %d: refetch after capture: %v", jobID, err)
		return
	}

	sj, err := storeJobToSchedulerJob(row)
	if err != nil {
		log.Printf("scheduler: job %d: %v", jobID, err)
		return
	}

	newStatus, next, _ := s.Calc.Calculate(sj, capturedAt, nil)
	if err := s.Store.UpdateSchedule(ctx, jobID, string(newStatus), next, false); err != nil {
		log.Printf("scheduler: job %d: update schedule after capture: %v", jobID, err)
	}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

// HydrateCount reports how many jobs are currently scheduled for a future
// capture, for the startup log line (capture_scheduler._hydrate_from_database
// logs the same count).
func (s *Scheduler) HydrateCount(ctx context.Context) (int, error) {
	now := s.Calc.Clock.Now()
	rows, err := s.Store.ListSchedulable(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range rows {
		if row.Status == "active" && row.NextScheduledCaptureAt != nil {
			n++
		}
	}
	return n, nil
}
