package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/kernelkaribou/timelapse-manager/internal/store"
	"github.com/kernelkaribou/timelapse-manager/internal/video"
)

type videoResponse struct {
	ID              int64   `json:"id"`
	JobID           int64   `json:"job_id"`
	JobName         string  `json:"job_name,omitempty"`
	Name            string  `json:"name"`
	FilePath        string  `json:"file_path"`
	FileSize        int64   `json:"file_size"`
	FileSizeHuman   string  `json:"file_size_human"`
	Resolution      string  `json:"resolution"`
	Framerate       int     `json:"framerate"`
	Quality         string  `json:"quality"`
	StartCaptureID  *int64  `json:"start_capture_id"`
	EndCaptureID    *int64  `json:"end_capture_id"`
	StartTime       *string `json:"start_time"`
	EndTime         *string `json:"end_time"`
	TotalFrames     int     `json:"total_frames"`
	DurationSeconds float64 `json:"duration_seconds"`
	Status          string  `json:"status"`
	Progress        float64 `json:"progress"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at"`
}

func (s *Server) toVideoResponse(v *store.Video, jobName string) videoResponse {
	resp := videoResponse{
		ID:              v.ID,
		JobID:           v.JobID,
		JobName:         jobName,
		Name:            v.Name,
		FilePath:        v.FilePath,
		FileSize:        v.FileSize,
		FileSizeHuman:   humanize.Bytes(uint64(v.FileSize)),
		Resolution:      v.Resolution,
		Framerate:       v.Framerate,
		Quality:         v.Quality,
		StartCaptureID:  v.StartCaptureID,
		EndCaptureID:    v.EndCaptureID,
		TotalFrames:     v.TotalFrames,
		DurationSeconds: v.DurationSeconds,
		Status:          v.Status,
		Progress:        v.Progress,
		CreatedAt:       s.Clock.ToISO(v.CreatedAt),
	}
	if v.StartTime != nil {
		t := s.Clock.ToISO(*v.StartTime)
		resp.StartTime = &t
	}
	if v.EndTime != nil {
		t := s.Clock.ToISO(*v.EndTime)
		resp.EndTime = &t
	}
	if v.CompletedAt != nil {
		t := s.Clock.ToISO(*v.CompletedAt)
		resp.CompletedAt = &t
	}
	return resp
}

func videoIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "videoID"), 10, 64)
}

type videoCreateRequest struct {
	JobID          int64   `json:"job_id"`
	Name           string  `json:"name"`
	Resolution     string  `json:"resolution"`
	Framerate      int     `json:"framerate"`
	Quality        string  `json:"quality"`
	OutputPath     string  `json:"output_path"`
	StartCaptureID *int64  `json:"start_capture_id"`
	EndCaptureID   *int64  `json:"end_capture_id"`
	StartTime      *string `json:"start_time"`
	EndTime        *string `json:"end_time"`
}

// createVideo ports videos.py's create_video: validate the job and output
// directory, insert a "processing" row, then hand the render off to a
// goroutine instead of FastAPI's BackgroundTasks — the request returns as
// soon as the row exists, same as the source project.
func (s *Server) createVideo(w http.ResponseWriter, r *http.Request) {
	var req videoCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Resolution == "" {
		req.Resolution = "1920x1080"
	}
	if req.Framerate <= 0 {
		req.Framerate = 30
	}
	if req.Quality == "" {
		req.Quality = "high"
	}

	ctx := r.Context()
	job, err := s.Store.GetJob(ctx, req.JobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	videosPath := req.OutputPath
	if videosPath == "" {
		if v, ok, err := s.Store.GetSetting(ctx, "default_videos_path"); err == nil && ok {
			videosPath = v
		} else {
			videosPath = s.DefaultVideosPath
		}
	}
	info, err := os.Stat(videosPath)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("output path does not exist or is not a directory: %s", videosPath))
		return
	}

	outputPath := filepath.Join(videosPath, req.Name+".mp4")

	var startTime, endTime *time.Time
	if req.StartTime != nil && *req.StartTime != "" {
		t, err := s.Clock.ParseISO(*req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		startTime = &t
	}
	if req.EndTime != nil && *req.EndTime != "" {
		t, err := s.Clock.ParseISO(*req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		endTime = &t
	}

	id, err := s.Store.CreateVideo(ctx, &store.Video{
		JobID:          req.JobID,
		Name:           req.Name,
		FilePath:       outputPath,
		Resolution:     req.Resolution,
		Framerate:      req.Framerate,
		Quality:        req.Quality,
		StartCaptureID: req.StartCaptureID,
		EndCaptureID:   req.EndCaptureID,
		StartTime:      startTime,
		EndTime:        endTime,
		Status:         "processing",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create video record")
		return
	}

	assembleReq := video.Request{
		VideoID:    id,
		JobID:      req.JobID,
		Resolution: req.Resolution,
		Framerate:  req.Framerate,
		Quality:    req.Quality,
		OutputPath: outputPath,
		CaptureRange: store.CaptureRange{
			StartTime: startTime,
			EndTime:   endTime,
			StartID:   req.StartCaptureID,
			EndID:     req.EndCaptureID,
		},
	}
	go func() {
		if err := s.Assembler.Run(context.Background(), assembleReq); err != nil {
			_ = err // recorded on the video row by Run itself; nothing left to do here
		}
	}()

	row, err := s.Store.GetVideo(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload created video")
		return
	}
	writeJSON(w, http.StatusCreated, s.toVideoResponse(row, job.Name))
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var jobIDs []int64
	if v := q.Get("job_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job_id")
			return
		}
		jobIDs = []int64{id}
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

	statusFilter := q.Get("status")
	jobNames := map[int64]string{}
	out := []videoResponse{}
	for _, jobID := range jobIDs {
		videos, err := s.Store.ListVideos(ctx, jobID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}
		name, ok := jobNames[jobID]
		if !ok {
			if job, err := s.Store.GetJob(ctx, jobID); err == nil {
				name = job.Name
			}
			jobNames[jobID] = name
		}
		for _, v := range videos {
			if statusFilter != "" && v.Status != statusFilter {
				continue
			}
			out = append(out, s.toVideoResponse(v, name))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getVideo(w http.ResponseWriter, r *http.Request) {
	id, err := videoIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	v, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	name := ""
	if job, err := s.Store.GetJob(r.Context(), v.JobID); err == nil {
		name = job.Name
	}
	writeJSON(w, http.StatusOK, s.toVideoResponse(v, name))
}

// checkVideo reports whether a completed video's file is actually
// accessible on disk, matching videos.py's /check endpoint.
func (s *Server) checkVideo(w http.ResponseWriter, r *http.Request) {
	id, err := videoIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	v, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	accessible := v.Status == "completed"
	if accessible {
		info, err := os.Stat(v.FilePath)
		accessible = err == nil && !info.IsDir()
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessible": accessible, "status": v.Status})
}

func (s *Server) downloadVideo(w http.ResponseWriter, r *http.Request) {
	id, err := videoIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	v, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	if v.Status != "completed" {
		writeError(w, http.StatusBadRequest, "video is not ready for download")
		return
	}
	if _, err := os.Stat(v.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "video file is missing from disk")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, v.Name))
	http.ServeFile(w, r, v.FilePath)
}

func (s *Server) deleteVideo(w http.ResponseWriter, r *http.Request) {
	id, err := videoIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	v, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	_ = os.Remove(v.FilePath)
	if err := s.Store.DeleteVideo(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete video")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
