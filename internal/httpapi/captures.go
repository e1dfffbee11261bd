package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/kernelkaribou/timelapse-manager/internal/store"
	"github.com/kernelkaribou/timelapse-manager/internal/thumbnail"
)

type captureResponse struct {
	ID            int64  `json:"id"`
	JobID         int64  `json:"job_id"`
	JobName       string `json:"job_name,omitempty"`
	FilePath      string `json:"file_path"`
	FileSize      int64  `json:"file_size"`
	FileSizeHuman string `json:"file_size_human"`
	CapturedAt    string `json:"captured_at"`
	HasThumbnail  bool   `json:"has_thumbnail"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}

func (s *Server) toCaptureResponse(c *store.Capture, jobName, jobCaptureDir string) captureResponse {
	resp := captureResponse{
		ID:            c.ID,
		JobID:         c.JobID,
		JobName:       jobName,
		FilePath:      c.FilePath,
		FileSize:      c.FileSize,
		FileSizeHuman: humanize.Bytes(uint64(c.FileSize)),
		CapturedAt:    s.Clock.ToISO(c.CapturedAt),
	}
	if thumbnail.Exists(jobCaptureDir, c.FilePath) {
		resp.HasThumbnail = true
		resp.ThumbnailPath = thumbnail.Path(jobCaptureDir, c.FilePath)
	}
	return resp
}

func sortCaptures(captures []*store.Capture, desc bool) {
	sort.Slice(captures, func(i, j int) bool {
		if desc {
			return captures[i].CapturedAt.After(captures[j].CapturedAt)
		}
		return captures[i].CapturedAt.Before(captures[j].CapturedAt)
	})
}

func captureIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "captureID"), 10, 64)
}

// jobNameAndDir looks up a job's name and capture directory for enrichment,
// tolerating a job that no longer exists (the capture row can outlive it
// between the DELETE FROM jobs cascade firing and a stale read).
func (s *Server) jobNameAndDir(r *http.Request, jobID int64) (string, string) {
	job, err := s.Store.GetJob(r.Context(), jobID)
	if err != nil {
		return "", ""
	}
	return job.Name, job.CapturePath
}

// listCaptures ports captures.py's list_captures: job_id/start_time/end_time
// filters, asc/desc sort, page/page_size pagination, and has_thumbnail /
// thumbnail_path enrichment computed the same way get_thumbnail_path /
// has_thumbnail do — by deriving the path from the source image rather than
// storing it.
func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pg := parsePagination(r)

	var jobID int64
	hasJobFilter := false
	if v := q.Get("job_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job_id")
			return
		}
		jobID = id
		hasJobFilter = true
	}

	var from, to *time.Time
	if v := q.Get("start_time"); v != "" {
		t, err := s.Clock.ParseISO(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time format")
			return
		}
		from = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := s.Clock.ParseISO(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time format")
			return
		}
		to = &t
	}

	ctx := r.Context()
	var jobIDs []int64
	if hasJobFilter {
		jobIDs = []int64{jobID}
	} else {
		jobs, err := s.Store.ListJobs(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list jobs")
			return
		}
		for _, j := range jobs {
			jobIDs = append(jobIDs, j.ID)
		}
	}

	var all []*store.Capture
	for _, id := range jobIDs {
		rows, err := s.Store.ListCaptures(ctx, id, from, to, 0, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list captures")
			return
		}
		all = append(all, rows...)
	}

	desc := q.Get("sort_order") == "desc"
	sortCaptures(all, desc)

	total := len(all)
	start := pg.offset()
	end := start + pg.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	page := all[start:end]

	jobNames := map[int64]string{}
	jobDirs := map[int64]string{}
	out := make([]captureResponse, 0, len(page))
	for _, c := range page {
		name, ok := jobNames[c.JobID]
		if !ok {
			name, jobDirs[c.JobID] = s.jobNameAndDir(r, c.JobID)
			jobNames[c.JobID] = name
		}
		out = append(out, s.toCaptureResponse(c, name, jobDirs[c.JobID]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"captures":    out,
		"total":       total,
		"page":        pg.Page,
		"page_size":   pg.PageSize,
		"total_pages": totalPages(total, pg.PageSize),
	})
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	id, err := captureIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture id")
		return
	}
	c, err := s.Store.GetCapture(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	name, dir := s.jobNameAndDir(r, c.JobID)
	writeJSON(w, http.StatusOK, s.toCaptureResponse(c, name, dir))
}

// deleteCapture removes the file, its thumbnail, and the DB row, then
// lowers the job's capture_count/storage_size via UpdateJobStorage, which
// floors both at zero (as the source project's CASE expression does).
func (s *Server) deleteCapture(w http.ResponseWriter, r *http.Request) {
	id, err := captureIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture id")
		return
	}
	ctx := r.Context()
	c, err := s.Store.GetCapture(ctx, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return
	}

	_, dir := s.jobNameAndDir(r, c.JobID)
	_ = os.Remove(c.FilePath)
	if dir != "" {
		_ = thumbnail.Delete(dir, c.FilePath)
	}
	if err := s.Store.DeleteCapture(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete capture")
		return
	}
	if err := s.Store.UpdateJobStorage(ctx, c.JobID, -1, -c.FileSize); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update job stats")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMultipleCaptures ports captures.py's bulk delete: every ID is
// attempted independently and per-item failures are collected rather than
// aborting the whole batch.
func (s *Server) deleteMultipleCaptures(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaptureIDs []int64 `json:"capture_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	deleted := 0
	var errs []string
	for _, id := range req.CaptureIDs {
		c, err := s.Store.GetCapture(ctx, id)
		if err != nil {
			errs = append(errs, "capture "+strconv.FormatInt(id, 10)+": not found")
			continue
		}
		_, dir := s.jobNameAndDir(r, c.JobID)
		_ = os.Remove(c.FilePath)
		if dir != "" {
			_ = thumbnail.Delete(dir, c.FilePath)
		}
		if err := s.Store.DeleteCapture(ctx, id); err != nil {
			errs = append(errs, "capture "+strconv.FormatInt(id, 10)+": "+err.Error())
			continue
		}
		_ = s.Store.UpdateJobStorage(ctx, c.JobID, -1, -c.FileSize)
		deleted++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_count": deleted,
		"errors":        errs,
	})
}

func (s *Server) captureCount(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	n, err := s.Store.CountCaptures(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count captures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) captureTimeRange(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	captures, err := s.Store.ListCaptures(r.Context(), id, nil, nil, 0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}
	if len(captures) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "min_time": nil, "max_time": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(captures),
		"min_time": s.Clock.ToISO(captures[0].CapturedAt),
		"max_time": s.Clock.ToISO(captures[len(captures)-1].CapturedAt),
	})
}

// serveImage streams a capture's source frame, matching captures.py's 404
// (no DB row)/403 (file removed out from under the row) distinction.
func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	id, err := captureIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture id")
		return
	}
	c, err := s.Store.GetCapture(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		writeError(w, http.StatusForbidden, "image file is missing from disk")
		return
	}
	http.ServeFile(w, r, c.FilePath)
}

// serveThumbnail serves an existing thumbnail or generates one on the fly,
// matching captures.py's get_thumbnail endpoint.
func (s *Server) serveThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := captureIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capture id")
		return
	}
	c, err := s.Store.GetCapture(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "capture not found")
		return
	}
	_, dir := s.jobNameAndDir(r, c.JobID)
	if _, err := os.Stat(c.FilePath); err != nil {
		writeError(w, http.StatusForbidden, "source image is missing from disk")
		return
	}
	path, err := s.Thumbnails.Ensure(r.Context(), dir, c.FilePath, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate thumbnail")
		return
	}
	http.ServeFile(w, r, path)
}
