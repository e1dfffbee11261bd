package scheduler

import (
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
)

// Status is a job's scheduler-owned lifecycle state (spec.md §3).
type Status string

const (
	StatusActive    Status = "active"
	StatusSleeping  Status = "sleeping"
	StatusCompleted Status = "completed"
	StatusDisabled  Status = "disabled"
)

// StreamType is the kind of video source a job captures from.
type StreamType string

const (
	StreamHTTP StreamType = "http"
	StreamRTSP StreamType = "rtsp"
)

// Job is the subset of the persisted job row the calculator needs. It is
// intentionally narrow — store.Job carries the full row; scheduler.Job is the
// pure-calculation view, built from it on every tick.
type Job struct {
	ID              int64
	Status          Status
	StartDatetime   time.Time
	EndDatetime     *time.Time // nil when open-ended
	IntervalSeconds int

	TimeWindowEnabled bool
	WindowStart       clock.TimeOfDay
	WindowEnd         clock.TimeOfDay
}
