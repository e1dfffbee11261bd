// Package health implements the readiness checks behind GET /health. It is
// adapted from the teacher's CheckProvider/CheckEndpoints pair (which probed
// an IPTV provider and HDHomeRun endpoints over HTTP) into the equivalent
// checks for this service's dependencies: the ffmpeg/ffprobe binaries this
// process shells out to, and the database connection captures and jobs live
// in.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"time"
)

// CheckBinary verifies that name resolves on PATH and reports its version
// string exits cleanly, the same way the teacher verified an upstream
// endpoint was reachable before declaring the service healthy.
func CheckBinary(ctx context.Context, name string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found on PATH: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s -version failed: %w", name, err)
	}
	return nil
}

// CheckDatabase pings db with a bounded timeout.
func CheckDatabase(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Report is the aggregate result returned by GET /health.
type Report struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

// Check runs every readiness probe and never returns an error itself — a
// failing dependency is recorded in the report rather than aborting the
// response, so the caller always gets a complete picture of what's down.
func Check(ctx context.Context, db *sql.DB, ffmpegPath, ffprobePath string) Report {
	report := Report{Healthy: true, Checks: map[string]string{}}

	record := func(name string, err error) {
		if err != nil {
			report.Healthy = false
			report.Checks[name] = err.Error()
			return
		}
		report.Checks[name] = "ok"
	}

	record("database", CheckDatabase(ctx, db))
	record("ffmpeg", CheckBinary(ctx, ffmpegPath))
	record("ffprobe", CheckBinary(ctx, ffprobePath))

	return report
}
