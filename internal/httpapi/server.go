package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
	"github.com/kernelkaribou/timelapse-manager/internal/clock"
	"github.com/kernelkaribou/timelapse-manager/internal/health"
	"github.com/kernelkaribou/timelapse-manager/internal/probe"
	"github.com/kernelkaribou/timelapse-manager/internal/scheduler"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
	"github.com/kernelkaribou/timelapse-manager/internal/thumbnail"
	"github.com/kernelkaribou/timelapse-manager/internal/video"
)

// Server holds everything the HTTP surface needs: the store, the same
// Calculator the background scheduler uses (so a freshly created job's
// initial status agrees with what the next tick would compute), and the
// ffmpeg-backed services jobs.py/captures.py/videos.py call directly inline.
type Server struct {
	Store      *store.Store
	Calc       *scheduler.Calculator
	Clock      *clock.Clock
	Tester     *probe.Tester
	Thumbnails *thumbnail.Generator
	Assembler  *video.Assembler

	DefaultCapturesPath string
	DefaultVideosPath   string
	DefaultNamingPattern string
	FFmpegPath          string
	FFprobePath         string
}

// NewServer wires a Server from its component services. grabber is the
// scheduler's capture.Grabber, reused so a test-url probe exercises the
// exact capture path a real job would.
func NewServer(st *store.Store, calc *scheduler.Calculator, clk *clock.Clock, grabber *capture.Grabber, thumbs *thumbnail.Generator, asm *video.Assembler, defaultCapturesPath, defaultVideosPath, defaultNamingPattern, ffmpegPath, ffprobePath string) *Server {
	return &Server{
		Store:                st,
		Calc:                 calc,
		Clock:                clk,
		Tester:               probe.NewTester(grabber),
		Thumbnails:           thumbs,
		Assembler:            asm,
		DefaultCapturesPath:  defaultCapturesPath,
		DefaultVideosPath:    defaultVideosPath,
		DefaultNamingPattern: defaultNamingPattern,
		FFmpegPath:           ffmpegPath,
		FFprobePath:          ffprobePath,
	}
}

// Routes builds the chi router: /api/jobs, /api/captures, /api/videos, plus
// unprefixed /health and /metrics. Kept as its own method (rather than
// inlined in Run) so tests can exercise it directly via httptest without a
// real listener.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Post("/test-url", s.testURL)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Patch("/", s.patchJob)
				r.Delete("/", s.deleteJob)
				r.Get("/duration-estimate", s.durationEstimate)
				r.Get("/latest-image", s.latestImage)
				r.Post("/maintenance/scan", s.maintenanceScan)
				r.Post("/maintenance/cleanup", s.maintenanceCleanup)
				r.Post("/maintenance/import", s.maintenanceImport)
			})
		})

		r.Route("/captures", func(r chi.Router) {
			r.Get("/", s.listCaptures)
			r.Post("/delete-multiple", s.deleteMultipleCaptures)
			r.Get("/job/{jobID}/count", s.captureCount)
			r.Get("/job/{jobID}/time-range", s.captureTimeRange)
			r.Route("/{captureID}", func(r chi.Router) {
				r.Get("/", s.getCapture)
				r.Delete("/", s.deleteCapture)
				r.Get("/image", s.serveImage)
				r.Get("/thumbnail", s.serveThumbnail)
			})
		})

		r.Route("/videos", func(r chi.Router) {
			r.Post("/", s.createVideo)
			r.Get("/", s.listVideos)
			r.Route("/{videoID}", func(r chi.Router) {
				r.Get("/", s.getVideo)
				r.Get("/check", s.checkVideo)
				r.Get("/download", s.downloadVideo)
				r.Delete("/", s.deleteVideo)
			})
		})
	})

	r.Get("/health", s.serveHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Run serves Routes() on addr until ctx is cancelled, then drains in-flight
// requests with a bounded timeout — the same shutdown shape as the
// teacher's tuner.Server.Run.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes()}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("httpapi: listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("httpapi: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("httpapi: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	report := health.Check(r.Context(), s.Store.DB(), s.FFmpegPath, s.FFprobePath)
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}
