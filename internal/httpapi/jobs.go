package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/kernelkaribou/timelapse-manager/internal/clock"
	"github.com/kernelkaribou/timelapse-manager/internal/duration"
	"github.com/kernelkaribou/timelapse-manager/internal/maintenance"
	"github.com/kernelkaribou/timelapse-manager/internal/probe"
	"github.com/kernelkaribou/timelapse-manager/internal/safeurl"
	"github.com/kernelkaribou/timelapse-manager/internal/scheduler"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

// jobResponse is the JSON shape returned for every job-bearing endpoint,
// ported field-for-field from models.JobResponse.
type jobResponse struct {
	ID                     int64   `json:"id"`
	Name                   string  `json:"name"`
	URL                    string  `json:"url"`
	StreamType             string  `json:"stream_type"`
	StartDatetime          string  `json:"start_datetime"`
	EndDatetime            *string `json:"end_datetime"`
	IntervalSeconds        int     `json:"interval_seconds"`
	Framerate              int     `json:"framerate"`
	Status                 string  `json:"status"`
	CapturePath            string  `json:"capture_path"`
	NamingPattern          string  `json:"naming_pattern"`
	CaptureCount           int     `json:"capture_count"`
	WarningMessage         *string `json:"warning_message"`
	StorageSize            int64   `json:"storage_size"`
	StorageSizeHuman       string  `json:"storage_size_human"`
	TimeWindowEnabled      bool    `json:"time_window_enabled"`
	TimeWindowStart        *string `json:"time_window_start"`
	TimeWindowEnd          *string `json:"time_window_end"`
	NextScheduledCaptureAt *string `json:"next_scheduled_capture_at"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
}

func (s *Server) toJobResponse(j *store.Job) jobResponse {
	resp := jobResponse{
		ID:                j.ID,
		Name:              j.Name,
		URL:               j.URL,
		StreamType:        j.StreamType,
		StartDatetime:     s.Clock.ToISO(j.StartDatetime),
		IntervalSeconds:   j.IntervalSeconds,
		Framerate:         j.Framerate,
		Status:            j.Status,
		CapturePath:       j.CapturePath,
		NamingPattern:     j.NamingPattern,
		CaptureCount:      j.CaptureCount,
		WarningMessage:    j.WarningMessage,
		StorageSize:       j.StorageSize,
		StorageSizeHuman:  humanize.Bytes(uint64(j.StorageSize)),
		TimeWindowEnabled: j.TimeWindowEnabled,
		TimeWindowStart:   j.TimeWindowStart,
		TimeWindowEnd:     j.TimeWindowEnd,
		CreatedAt:         s.Clock.ToISO(j.CreatedAt),
		UpdatedAt:         s.Clock.ToISO(j.UpdatedAt),
	}
	if j.EndDatetime != nil {
		v := s.Clock.ToISO(*j.EndDatetime)
		resp.EndDatetime = &v
	}
	if j.NextScheduledCaptureAt != nil {
		v := s.Clock.ToISO(*j.NextScheduledCaptureAt)
		resp.NextScheduledCaptureAt = &v
	}
	return resp
}

func jobIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
}

type jobCreateRequest struct {
	Name              string  `json:"name"`
	URL               string  `json:"url"`
	StreamType        string  `json:"stream_type"`
	StartDatetime     string  `json:"start_datetime"`
	EndDatetime       *string `json:"end_datetime"`
	IntervalSeconds   int     `json:"interval_seconds"`
	Framerate         int     `json:"framerate"`
	CapturePath       string  `json:"capture_path"`
	NamingPattern     string  `json:"naming_pattern"`
	TimeWindowEnabled bool    `json:"time_window_enabled"`
	TimeWindowStart   *string `json:"time_window_start"`
	TimeWindowEnd     *string `json:"time_window_end"`
}

// createJob mirrors jobs.py's create_job: validate the capture path, insert
// the row, then create the `{id}_{name}` job directory and fold its real
// path back in — and finally run the same Calculator every tick uses to set
// the job's true initial status and next_scheduled_capture_at rather than
// leaving it in whatever default the row started with.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}
	if req.IntervalSeconds < 10 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be >= 10")
		return
	}
	if req.Framerate <= 0 {
		req.Framerate = 30
	}
	if req.StreamType == "" {
		req.StreamType = probe.DetectStreamType(req.URL)
	}
	if !safeurl.IsValidStreamURL(req.URL, req.StreamType) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("url does not match stream_type %q", req.StreamType))
		return
	}
	if req.CapturePath == "" {
		req.CapturePath = s.DefaultCapturesPath
	}
	if req.NamingPattern == "" {
		req.NamingPattern = s.DefaultNamingPattern
	}

	info, err := os.Stat(req.CapturePath)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("capture path does not exist or is not a directory: %s", req.CapturePath))
		return
	}

	start, err := s.Clock.ParseISO(req.StartDatetime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_datetime")
		return
	}
	var end *time.Time
	if req.EndDatetime != nil && *req.EndDatetime != "" {
		t, err := s.Clock.ParseISO(*req.EndDatetime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_datetime")
			return
		}
		minEnd := start.Add(time.Duration(req.IntervalSeconds) * time.Second)
		if t.Before(minEnd) {
			writeError(w, http.StatusBadRequest, "end_datetime must be at least one interval after start_datetime")
			return
		}
		if !t.After(s.Clock.Now()) {
			writeError(w, http.StatusBadRequest, "end_datetime must be in the future")
			return
		}
		end = &t
	}
	if req.TimeWindowEnabled {
		if req.TimeWindowStart == nil || req.TimeWindowEnd == nil {
			writeError(w, http.StatusBadRequest, "time_window_start and time_window_end are required when time_window_enabled")
			return
		}
		if _, err := clock.ParseTimeOfDay(*req.TimeWindowStart); err != nil {
			writeError(w, http.StatusBadRequest, "invalid time_window_start")
			return
		}
		if _, err := clock.ParseTimeOfDay(*req.TimeWindowEnd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid time_window_end")
			return
		}
	}

	job := &store.Job{
		Name:              req.Name,
		URL:               req.URL,
		StreamType:        req.StreamType,
		StartDatetime:     start,
		EndDatetime:       end,
		IntervalSeconds:   req.IntervalSeconds,
		Framerate:         req.Framerate,
		Status:            "sleeping",
		CapturePath:       "",
		NamingPattern:     req.NamingPattern,
		TimeWindowEnabled: req.TimeWindowEnabled,
		TimeWindowStart:   req.TimeWindowStart,
		TimeWindowEnd:     req.TimeWindowEnd,
	}

	ctx := r.Context()
	id, err := s.Store.CreateJob(ctx, job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	jobDir := filepath.Join(req.CapturePath, fmt.Sprintf("%d_%s", id, req.Name))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		_ = s.Store.DeleteJob(ctx, id)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to create job directory: %v", err))
		return
	}
	if err := s.Store.PatchJob(ctx, id, map[string]any{"capture_path": jobDir}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to finalize job directory")
		return
	}

	row, err := s.Store.GetJob(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load created job")
		return
	}

	now := s.Clock.Now()
	sj, err := scheduler.ToSchedulerJob(row)
	if err == nil {
		newStatus, next, _ := s.Calc.Calculate(sj, now, nil)
		_ = s.Store.UpdateSchedule(ctx, id, string(newStatus), next, false)
		row, _ = s.Store.GetJob(ctx, id)
	}

	writeJSON(w, http.StatusCreated, s.toJobResponse(row))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Store.ListJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	status := r.URL.Query().Get("status")
	out := make([]jobResponse, 0, len(rows))
	for _, row := range rows {
		if status != "" && row.Status != status {
			continue
		}
		out = append(out, s.toJobResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	row, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, s.toJobResponse(row))
}

type jobPatchRequest struct {
	Name              *string `json:"name"`
	URL               *string `json:"url"`
	StreamType        *string `json:"stream_type"`
	StartDatetime     *string `json:"start_datetime"`
	EndDatetime       *string `json:"end_datetime"`
	EndDatetimeSet    bool    `json:"-"`
	IntervalSeconds   *int    `json:"interval_seconds"`
	Framerate         *int    `json:"framerate"`
	Status            *string `json:"status"`
	TimeWindowEnabled *bool   `json:"time_window_enabled"`
	TimeWindowStart   *string `json:"time_window_start"`
	TimeWindowEnd     *string `json:"time_window_end"`
}

// patchJob ports update_job's dynamic-column-builder logic: only named
// fields move, a schedule-affecting change (interval/start/window) or a
// status-affecting one (end_datetime) triggers a Calculator re-run against
// the row as it would look after the patch, and a final pass corrects
// active/sleeping drift exactly like the source project's two-phase update.
func (s *Server) patchJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	current, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var req jobPatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, req.EndDatetimeSet = raw["end_datetime"]

	fields := map[string]any{}
	scheduleChanged := false
	statusNeedsRecalc := false
	ctx := r.Context()

	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.URL != nil {
		fields["url"] = *req.URL
	}
	if req.StreamType != nil {
		fields["stream_type"] = *req.StreamType
	}
	if req.StartDatetime != nil {
		if current.CaptureCount > 0 {
			writeError(w, http.StatusBadRequest, "start_datetime cannot be changed once captures have been recorded")
			return
		}
		t, err := s.Clock.ParseISO(*req.StartDatetime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_datetime")
			return
		}
		fields["start_datetime"] = s.Clock.ToISO(t)
		current.StartDatetime = t
		scheduleChanged = true
	}
	isCompleting := req.Status != nil && *req.Status == "completed"
	if req.EndDatetimeSet {
		if req.EndDatetime != nil && *req.EndDatetime != "" {
			t, err := s.Clock.ParseISO(*req.EndDatetime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid end_datetime")
				return
			}
			if !isCompleting {
				now := s.Clock.Now()
				if !t.After(now) {
					writeError(w, http.StatusBadRequest, "end_datetime must be in the future")
					return
				}
				minEnd := now.Add(secondsToDuration(current.IntervalSeconds))
				if t.Before(minEnd) {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("end_datetime must be at least %d seconds in the future", current.IntervalSeconds))
					return
				}
			}
			fields["end_datetime"] = s.Clock.ToISO(t)
			current.EndDatetime = &t
		} else {
			fields["end_datetime"] = nil
			current.EndDatetime = nil
		}
		statusNeedsRecalc = true
	}
	if req.IntervalSeconds != nil {
		if *req.IntervalSeconds < 10 {
			writeError(w, http.StatusBadRequest, "interval_seconds must be >= 10")
			return
		}
		fields["interval_seconds"] = *req.IntervalSeconds
		current.IntervalSeconds = *req.IntervalSeconds
		scheduleChanged = true
	}
	if req.Framerate != nil {
		fields["framerate"] = *req.Framerate
	}
	if req.Status != nil {
		fields["status"] = *req.Status
		if current.Status == "disabled" && *req.Status == "active" {
			sj, err := scheduler.ToSchedulerJob(current)
			if err == nil {
				sj.Status = scheduler.StatusActive
				next, _ := nextScheduledCapture(s.Calc, sj, s.Clock.Now())
				fields["next_scheduled_capture_at"] = nullableISO(s.Clock, next)
			}
		}
		current.Status = *req.Status
	}
	if req.TimeWindowEnabled != nil {
		fields["time_window_enabled"] = *req.TimeWindowEnabled
		current.TimeWindowEnabled = *req.TimeWindowEnabled
		scheduleChanged = true
	}
	if req.TimeWindowStart != nil {
		fields["time_window_start"] = *req.TimeWindowStart
		current.TimeWindowStart = req.TimeWindowStart
		scheduleChanged = true
	}
	if req.TimeWindowEnd != nil {
		fields["time_window_end"] = *req.TimeWindowEnd
		current.TimeWindowEnd = req.TimeWindowEnd
		scheduleChanged = true
	}

	if (scheduleChanged || statusNeedsRecalc) && statusIsOneOf(current.Status, "active", "sleeping", "completed") {
		sj, err := scheduler.ToSchedulerJob(current)
		if err == nil {
			now := s.Clock.Now()
			newStatus, next, _ := s.Calc.Calculate(sj, now, nil)
			fields["next_scheduled_capture_at"] = nullableISO(s.Clock, next)
			fields["status"] = string(newStatus)
			current.Status = string(newStatus)
		}
	}

	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, "no updates provided")
		return
	}

	if err := s.Store.PatchJob(ctx, id, fields); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update job")
		return
	}

	updated, err := s.Store.GetJob(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload job")
		return
	}

	if statusIsOneOf(updated.Status, "active", "sleeping") {
		sj, err := scheduler.ToSchedulerJob(updated)
		if err == nil {
			correctStatus, _, _ := s.Calc.Calculate(sj, s.Clock.Now(), nil)
			if string(correctStatus) != updated.Status {
				_ = s.Store.PatchJob(ctx, id, map[string]any{"status": string(correctStatus)})
				updated, _ = s.Store.GetJob(ctx, id)
			}
		}
	}

	writeJSON(w, http.StatusOK, s.toJobResponse(updated))
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	row, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if r.URL.Query().Get("delete_captures") == "true" && row.CapturePath != "" {
		_ = os.RemoveAll(row.CapturePath)
	}
	if err := s.Store.DeleteJob(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) testURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL        string `json:"url"`
		StreamType string `json:"stream_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	result := s.Tester.Test(r.Context(), req.URL, req.StreamType)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) durationEstimate(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	row, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	window := duration.CaptureWindow{}
	if row.TimeWindowEnabled && row.TimeWindowStart != nil && row.TimeWindowEnd != nil {
		start, err1 := clock.ParseTimeOfDay(*row.TimeWindowStart)
		end, err2 := clock.ParseTimeOfDay(*row.TimeWindowEnd)
		if err1 == nil && err2 == nil {
			window = duration.CaptureWindow{Enabled: true, Start: start, End: end}
		}
	}

	hours := queryFloatPtr(r, "hours")
	days := queryFloatPtr(r, "days")
	est := duration.Calculate(row.StartDatetime, row.EndDatetime, row.IntervalSeconds, row.Framerate, window, s.Clock.Location(), hours, days)

	writeJSON(w, http.StatusOK, map[string]any{
		"captures": est.Captures,
		"calculations": []map[string]any{{
			"fps":                est.FPS,
			"duration_seconds":   est.DurationSeconds,
			"duration_formatted": est.DurationFormatted,
		}},
	})
}

func (s *Server) latestImage(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	captures, err := s.Store.ListCaptures(r.Context(), id, nil, nil, 1, 0)
	if err != nil || len(captures) == 0 {
		writeError(w, http.StatusNotFound, "no captures found for job")
		return
	}
	// ListCaptures orders ascending; the latest is the last limited row only
	// when limit=1 starts from the beginning, so fetch the full count instead.
	all, err := s.Store.ListCaptures(r.Context(), id, nil, nil, 0, 0)
	if err != nil || len(all) == 0 {
		writeError(w, http.StatusNotFound, "no captures found for job")
		return
	}
	latest := all[len(all)-1]
	writeJSON(w, http.StatusOK, map[string]string{"file_path": latest.FilePath})
}

func (s *Server) maintenanceScan(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	result, err := maintenance.Scan(r.Context(), s.Store, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) maintenanceCleanup(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	var req struct {
		CaptureIDs []int64 `json:"capture_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := maintenance.CleanupMissing(r.Context(), s.Store, id, req.CaptureIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) maintenanceImport(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	var req struct {
		OrphanedFiles []maintenance.OrphanedFile `json:"orphaned_files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := maintenance.ImportOrphaned(r.Context(), s.Store, id, req.OrphanedFiles)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func statusIsOneOf(status string, options ...string) bool {
	for _, o := range options {
		if status == o {
			return true
		}
	}
	return false
}

func nextScheduledCapture(calc *scheduler.Calculator, sj scheduler.Job, now time.Time) (*time.Time, string) {
	_, next, reason := calc.Calculate(sj, now, nil)
	return next, reason
}

func nullableISO(clk *clock.Clock, t *time.Time) any {
	if t == nil {
		return nil
	}
	return clk.ToISO(*t)
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
