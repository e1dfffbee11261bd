// Package store is the persistence layer: SQLite via the pure-Go
// modernc.org/sqlite driver (no cgo, matching the teacher's internal/plex
// package, which opens Plex's own library with the same driver), accessed
// through database/sql with hand-written SQL — no ORM, in the teacher's
// style of direct, explicit queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Job is the full persisted row. scheduler.Job is the narrow pure-calculation
// view built from this on every tick.
type Job struct {
	ID                     int64
	Name                   string
	URL                    string
	StreamType             string
	StartDatetime          time.Time
	EndDatetime            *time.Time
	IntervalSeconds        int
	Framerate              int
	Status                 string
	CapturePath            string
	NamingPattern          string
	CaptureCount           int
	StorageSize            int64
	WarningMessage         *string
	TimeWindowEnabled      bool
	TimeWindowStart        *string
	TimeWindowEnd          *string
	NextScheduledCaptureAt *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Capture is a single recorded frame grab.
type Capture struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	CapturedAt time.Time `json:"captured_at"`
}

// Video is an assembled timelapse video (background-processed from captures).
type Video struct {
	ID              int64
	JobID           int64
	Name            string
	FilePath        string
	FileSize        int64
	Resolution      string
	Framerate       int
	Quality         string
	StartCaptureID  *int64
	EndCaptureID    *int64
	StartTime       *time.Time
	EndTime         *time.Time
	TotalFrames     int
	DurationSeconds float64
	Status          string
	Progress        float64
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Store wraps a *sql.DB with the queries this service needs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. Foreign keys are enabled per-connection, since SQLite defaults
// them off.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func scanNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s.String); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// CreateJob inserts a new job row and returns its assigned ID.
func (s *Store) CreateJob(ctx context.Context, j *Job) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			name, url, stream_type, start_datetime, end_datetime, interval_seconds,
			framerate, status, capture_path, naming_pattern, time_window_enabled,
			time_window_start, time_window_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Name, j.URL, j.StreamType, nullableTime(&j.StartDatetime), nullableTime(j.EndDatetime),
		j.IntervalSeconds, j.Framerate, j.Status, j.CapturePath, j.NamingPattern,
		boolToInt(j.TimeWindowEnabled), j.TimeWindowStart, j.TimeWindowEnd,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("store: create job: %w", err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const jobColumns = `
	id, name, url, stream_type, start_datetime, end_datetime, interval_seconds,
	framerate, status, capture_path, naming_pattern, capture_count, storage_size,
	warning_message, time_window_enabled, time_window_start, time_window_end,
	next_scheduled_capture_at, created_at, updated_at
`

func scanJob(row interface {
	Scan(dest ...any) error
}) (*Job, error) {
	var j Job
	var endDT, nextCap sql.NullString
	var warning, winStart, winEnd sql.NullString
	var timeWindowEnabled int
	var startDT, createdAt, updatedAt string

	err := row.Scan(
		&j.ID, &j.Name, &j.URL, &j.StreamType, &startDT, &endDT, &j.IntervalSeconds,
		&j.Framerate, &j.Status, &j.CapturePath, &j.NamingPattern, &j.CaptureCount, &j.StorageSize,
		&warning, &timeWindowEnabled, &winStart, &winEnd,
		&nextCap, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if j.StartDatetime, err = time.Parse(time.RFC3339Nano, startDT); err != nil {
		return nil, fmt.Errorf("store: parse start_datetime: %w", err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("store: parse updated_at: %w", err)
	}
	if j.EndDatetime, err = scanNullableTime(endDT); err != nil {
		return nil, fmt.Errorf("store: parse end_datetime: %w", err)
	}
	if j.NextScheduledCaptureAt, err = scanNullableTime(nextCap); err != nil {
		return nil, fmt.Errorf("store: parse next_scheduled_capture_at: %w", err)
	}
	j.TimeWindowEnabled = timeWindowEnabled != 0
	if warning.Valid {
		j.WarningMessage = &warning.String
	}
	if winStart.Valid {
		j.TimeWindowStart = &winStart.String
	}
	if winEnd.Valid {
		j.TimeWindowEnd = &winEnd.String
	}
	return &j, nil
}

// GetJob fetches a single job by ID, or sql.ErrNoRows if it doesn't exist.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("store: get job %d: %w", id, err)
	}
	return j, nil
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListSchedulable returns every job the scheduler tick must evaluate: not
// disabled or (already) completed, started, and either open-ended, not yet
// past its end, or carrying a pending capture still inside its end bound.
// Mirrors the WHERE clause in the source project's capture_scheduler._check_and_capture.
func (s *Store) ListSchedulable(ctx context.Context, now time.Time) ([]*Job, error) {
	nowStr := now.UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('active', 'sleeping')
		AND start_datetime <= ?
		AND (
			end_datetime IS NULL
			OR end_datetime >= ?
			OR (next_scheduled_capture_at IS NOT NULL AND next_scheduled_capture_at <= end_datetime)
		)`, nowStr, nowStr)
	if err != nil {
		return nil, fmt.Errorf("store: list schedulable jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateSchedule writes the scheduler's state transition for a job: status,
// next scheduled capture, and (when clearWarning is set) clears any stale
// warning message. This is the only write path scheduler ticks use.
func (s *Store) UpdateSchedule(ctx context.Context, jobID int64, status string, next *time.Time, clearWarning bool) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var nextVal any
	if next != nil {
		nextVal = next.UTC().Format(time.RFC3339Nano)
	}

	query := `UPDATE jobs SET status = ?, next_scheduled_capture_at = ?, updated_at = ?`
	args := []any{status, nextVal, now}
	if clearWarning {
		query += `, warning_message = NULL`
	}
	query += ` WHERE id = ?`
	args = append(args, jobID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: update schedule for job %d: %w", jobID, err)
	}
	return nil
}

// SetWarning sets or clears a job's warning message independently of status.
func (s *Store) SetWarning(ctx context.Context, jobID int64, message *string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET warning_message = ? WHERE id = ?`, message, jobID); err != nil {
		return fmt.Errorf("store: set warning for job %d: %w", jobID, err)
	}
	return nil
}

// RecordCapture inserts a capture row and atomically bumps the parent job's
// capture_count/storage_size/updated_at, clearing any warning message — the
// same combined write the source project does inside image_capture.capture_image.
func (s *Store) RecordCapture(ctx context.Context, jobID int64, filePath string, fileSize int64, capturedAt time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: record capture: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO captures (job_id, file_path, file_size, captured_at) VALUES (?, ?, ?, ?)`,
		jobID, filePath, fileSize, capturedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("store: insert capture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET capture_count = capture_count + 1, storage_size = storage_size + ?,
		updated_at = ?, warning_message = NULL WHERE id = ?`, fileSize, now, jobID); err != nil {
		return 0, fmt.Errorf("store: update job capture stats: %w", err)
	}

	return id, tx.Commit()
}

func scanCapture(row interface{ Scan(dest ...any) error }) (*Capture, error) {
	var c Capture
	var capturedAt string
	if err := row.Scan(&c.ID, &c.JobID, &c.FilePath, &c.FileSize, &capturedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		return nil, fmt.Errorf("parse captured_at: %w", err)
	}
	c.CapturedAt = t
	return &c, nil
}

const captureColumns = `id, job_id, file_path, file_size, captured_at`

// ListCaptures returns a job's captures in capture order, optionally bounded
// by [from, to] (zero values mean unbounded) and limited/offset for paging.
func (s *Store) ListCaptures(ctx context.Context, jobID int64, from, to *time.Time, limit, offset int) ([]*Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures WHERE job_id = ?`
	args := []any{jobID}
	if from != nil {
		query += ` AND captured_at >= ?`
		args = append(args, from.UTC().Format(time.RFC3339Nano))
	}
	if to != nil {
		query += ` AND captured_at <= ?`
		args = append(args, to.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY captured_at ASC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list captures: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CaptureRange selects the captures a video assembly job should include.
// Time bounds take precedence over ID bounds when both are set, matching
// process_video's "prefer time-based filtering over ID-based filtering".
type CaptureRange struct {
	StartTime *time.Time
	EndTime   *time.Time
	StartID   *int64
	EndID     *int64
}

// ListCapturesInRange returns a job's captures in capture order, selected by
// CaptureRange.
func (s *Store) ListCapturesInRange(ctx context.Context, jobID int64, r CaptureRange) ([]*Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures WHERE job_id = ?`
	args := []any{jobID}

	switch {
	case r.StartTime != nil:
		query += ` AND captured_at >= ?`
		args = append(args, r.StartTime.UTC().Format(time.RFC3339Nano))
	case r.StartID != nil:
		query += ` AND id >= ?`
		args = append(args, *r.StartID)
	}
	switch {
	case r.EndTime != nil:
		query += ` AND captured_at <= ?`
		args = append(args, r.EndTime.UTC().Format(time.RFC3339Nano))
	case r.EndID != nil:
		query += ` AND id <= ?`
		args = append(args, *r.EndID)
	}
	query += ` ORDER BY captured_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list captures in range: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCaptures returns the number of captures recorded for a job.
func (s *Store) CountCaptures(ctx context.Context, jobID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures WHERE job_id = ?`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count captures: %w", err)
	}
	return n, nil
}

// GetCapture fetches a single capture by ID.
func (s *Store) GetCapture(ctx context.Context, id int64) (*Capture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if err != nil {
		return nil, fmt.Errorf("store: get capture %d: %w", id, err)
	}
	return c, nil
}

// DeleteCapture removes a single capture row (caller deletes the file).
func (s *Store) DeleteCapture(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete capture %d: %w", id, err)
	}
	return nil
}

// DeleteCapturesForJob removes every capture row belonging to a job and
// returns the deleted rows so the caller can remove their files from disk.
// The HTTP handlers do not call it: bulk delete removes captures one by one,
// and job deletion relies on ON DELETE CASCADE.
func (s *Store) DeleteCapturesForJob(ctx context.Context, jobID int64) ([]*Capture, error) {
	captures, err := s.ListCaptures(ctx, jobID, nil, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE job_id = ?`, jobID); err != nil {
		return nil, fmt.Errorf("store: delete captures for job %d: %w", jobID, err)
	}
	return captures, nil
}

// UpdateJobStorage adjusts a job's capture_count and storage_size by the
// given deltas, never letting either drop below zero; used after deleting
// captures out from under it.
func (s *Store) UpdateJobStorage(ctx context.Context, jobID int64, countDelta int, sizeDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET capture_count = MAX(capture_count + ?, 0), storage_size = MAX(storage_size + ?, 0), updated_at = ?
		WHERE id = ?`, countDelta, sizeDelta, time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("store: update job storage for %d: %w", jobID, err)
	}
	return nil
}

// DeleteJob removes a job and, via ON DELETE CASCADE, its captures and videos.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete job %d: %w", id, err)
	}
	return nil
}

// PatchJob applies a sparse set of column updates built by the httpapi layer
// from a PATCH request. fields maps column name to new value; callers must
// only pass column names this function recognizes.
func (s *Store) PatchJob(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	query := `UPDATE jobs SET updated_at = ?`
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}
	for col, val := range fields {
		query += fmt.Sprintf(`, %s = ?`, col)
		args = append(args, val)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: patch job %d: %w", id, err)
	}
	return nil
}

const videoColumns = `
	id, job_id, name, file_path, file_size, resolution, framerate, quality,
	start_capture_id, end_capture_id, start_time, end_time, total_frames,
	duration_seconds, status, progress, created_at, completed_at
`

func scanVideo(row interface{ Scan(dest ...any) error }) (*Video, error) {
	var v Video
	var startCap, endCap sql.NullInt64
	var startTime, endTime, completedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&v.ID, &v.JobID, &v.Name, &v.FilePath, &v.FileSize, &v.Resolution, &v.Framerate, &v.Quality,
		&startCap, &endCap, &startTime, &endTime, &v.TotalFrames, &v.DurationSeconds,
		&v.Status, &v.Progress, &createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if startCap.Valid {
		v.StartCaptureID = &startCap.Int64
	}
	if endCap.Valid {
		v.EndCaptureID = &endCap.Int64
	}
	if v.StartTime, err = scanNullableTime(startTime); err != nil {
		return nil, err
	}
	if v.EndTime, err = scanNullableTime(endTime); err != nil {
		return nil, err
	}
	if v.CompletedAt, err = scanNullableTime(completedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVideo inserts a new processed_videos row in "processing" state and
// returns its ID; the video package updates progress/status as it runs.
func (s *Store) CreateVideo(ctx context.Context, v *Video) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_videos (
			job_id, name, file_path, file_size, resolution, framerate, quality,
			start_capture_id, end_capture_id, start_time, end_time, total_frames,
			duration_seconds, status, progress, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.JobID, v.Name, v.FilePath, v.FileSize, v.Resolution, v.Framerate, v.Quality,
		v.StartCaptureID, v.EndCaptureID, nullableTime(v.StartTime), nullableTime(v.EndTime),
		v.TotalFrames, v.DurationSeconds, v.Status, v.Progress, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: create video: %w", err)
	}
	return res.LastInsertId()
}

// UpdateVideoProgress updates a video's progress percentage (0-100) and, when status
// is terminal ("completed"/"failed"), stamps completed_at.
func (s *Store) UpdateVideoProgress(ctx context.Context, id int64, status string, progress float64, fileSize int64) error {
	var completedAt any
	if status == "completed" || status == "failed" {
		completedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE processed_videos SET status = ?, progress = ?, file_size = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ?`, status, progress, fileSize, completedAt, id)
	if err != nil {
		return fmt.Errorf("store: update video progress %d: %w", id, err)
	}
	return nil
}

// CompleteVideo marks a video "completed" with its final rendered metadata.
func (s *Store) CompleteVideo(ctx context.Context, id int64, fileSize int64, totalFrames int, durationSeconds float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		UPDATE processed_videos
		SET status = 'completed', progress = 100, file_size = ?, total_frames = ?,
			duration_seconds = ?, completed_at = ?
		WHERE id = ?`, fileSize, totalFrames, durationSeconds, now, id)
	if err != nil {
		return fmt.Errorf("store: complete video %d: %w", id, err)
	}
	return nil
}

// GetVideo fetches a single video by ID.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM processed_videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err != nil {
		return nil, fmt.Errorf("store: get video %d: %w", id, err)
	}
	return v, nil
}

// ListVideos returns every video for a job, newest first.
func (s *Store) ListVideos(ctx context.Context, jobID int64) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM processed_videos WHERE job_id = ? ORDER BY id DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: list videos: %w", err)
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteVideo removes a video row (caller deletes the file).
func (s *Store) DeleteVideo(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_videos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete video %d: %w", id, err)
	}
	return nil
}

// DeleteCapturesByIDs removes the given captures, but only the ones that
// belong to jobID — an ID for a different job is silently skipped, the
// same ownership check cleanup_missing_captures performs before deleting.
// Returns how many rows were actually removed and their total file size.
func (s *Store) DeleteCapturesByIDs(ctx context.Context, jobID int64, ids []int64) (deletedCount int, sizeRecovered int64, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("store: cleanup captures: begin tx: %w", err)
	}
	defer tx.Rollback()

	placeholders, args := inClause(ids)
	args = append(args, jobID)

	rows, err := tx.QueryContext(ctx, `SELECT id, file_size FROM captures WHERE id IN (`+placeholders+`) AND job_id = ?`, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("store: select captures to clean up: %w", err)
	}
	var matched []int64
	for rows.Next() {
		var id int64
		var size int64
		if err := rows.Scan(&id, &size); err != nil {
			rows.Close()
			return 0, 0, err
		}
		matched = append(matched, id)
		sizeRecovered += size
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if len(matched) == 0 {
		return 0, 0, nil
	}

	matchedPlaceholders, matchedArgs := inClause(matched)
	res, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE id IN (`+matchedPlaceholders+`)`, matchedArgs...)
	if err != nil {
		return 0, 0, fmt.Errorf("store: delete captures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	deletedCount = int(n)

	if err := recalculateJobStats(ctx, tx, jobID); err != nil {
		return 0, 0, err
	}

	return deletedCount, sizeRecovered, tx.Commit()
}

// ImportCaptures inserts a batch of orphan capture rows discovered on disk,
// then recalculates the job's capture_count/storage_size from the full set.
func (s *Store) ImportCaptures(ctx context.Context, jobID int64, captures []Capture) (imported int, totalSize int64, err error) {
	if len(captures) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("store: import captures: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range captures {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO captures (job_id, file_path, file_size, captured_at) VALUES (?, ?, ?, ?)`,
			jobID, c.FilePath, c.FileSize, c.CapturedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return 0, 0, fmt.Errorf("store: import capture %s: %w", c.FilePath, err)
		}
		imported++
		totalSize += c.FileSize
	}

	if err := recalculateJobStats(ctx, tx, jobID); err != nil {
		return 0, 0, err
	}

	return imported, totalSize, tx.Commit()
}

func recalculateJobStats(ctx context.Context, tx *sql.Tx, jobID int64) error {
	var count int
	var size int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM captures WHERE job_id = ?`, jobID).Scan(&count, &size); err != nil {
		return fmt.Errorf("store: recalculate job stats: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET capture_count = ?, storage_size = ?, updated_at = ? WHERE id = ?`, count, size, now, jobID); err != nil {
		return fmt.Errorf("store: apply recalculated job stats: %w", err)
	}
	return nil
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}

// GetSetting returns a setting's value, or ("", false) if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return val, true, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}
