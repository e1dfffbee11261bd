// Package maintenance reconciles a job's database records against the files
// actually sitting in its capture directory: finding captures the database
// thinks exist but are gone from disk, and image files on disk the database
// doesn't know about. Ported from the source project's
// backend/services/maintenance.py.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kernelkaribou/timelapse-manager/internal/store"
)

var filenameTimestampPattern = regexp.MustCompile(`(\d{8})_(\d{6})`)

// ExtractTimestampFromFile derives a capture timestamp for a file found on
// disk that the database has no record of. It tries the YYYYMMDD_HHMMSS
// pattern embedded in the filename first, then falls back to the file's
// modification time. The source project also tries EXIF DateTimeOriginal
// between those two steps; Go's standard library has no EXIF reader, and
// pulling in an image-metadata dependency for a third-choice fallback wasn't
// worth it — see DESIGN.md.
func ExtractTimestampFromFile(path string) time.Time {
	name := filepath.Base(path)
	if m := filenameTimestampPattern.FindStringSubmatch(name); m != nil {
		if t, err := time.ParseInLocation("20060102_150405", m[1]+"_"+m[2], time.Local); err == nil {
			return t
		}
	}

	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

// OrphanedFile is an image on disk with no matching captures row.
type OrphanedFile struct {
	FilePath   string    `json:"file_path"`
	FileSize   int64     `json:"file_size"`
	CapturedAt time.Time `json:"captured_at"`
}

// ScanResult summarizes the gap between a job's captures table and its
// capture directory.
type ScanResult struct {
	JobID                int64            `json:"job_id"`
	JobName              string           `json:"job_name"`
	TotalCaptures        int              `json:"total_captures"`
	MissingFiles         []*store.Capture `json:"missing_files"`
	OrphanedFiles        []OrphanedFile   `json:"orphaned_files"`
	ExistingCount        int              `json:"existing_count"`
	TotalSizeRecoverable int64            `json:"total_size_recoverable"`
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Scan walks a job's capture directory and its captures table, classifying
// each row as present-on-disk or missing, and each image file on disk as
// known or orphaned. Mirrors scan_job_files.
func Scan(ctx context.Context, st *store.Store, jobID int64) (*ScanResult, error) {
	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("maintenance: scan job %d: %w", jobID, err)
	}

	captures, err := st.ListCaptures(ctx, jobID, nil, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("maintenance: scan job %d: list captures: %w", jobID, err)
	}

	result := &ScanResult{JobID: jobID, JobName: job.Name, TotalCaptures: len(captures)}
	known := make(map[string]bool, len(captures))

	for _, c := range captures {
		known[c.FilePath] = true
		if _, err := os.Stat(c.FilePath); err != nil {
			result.MissingFiles = append(result.MissingFiles, c)
			result.TotalSizeRecoverable += c.FileSize
			continue
		}
		result.ExistingCount++
	}

	if _, err := os.Stat(job.CapturePath); err == nil {
		_ = filepath.WalkDir(job.CapturePath, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if known[path] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			result.OrphanedFiles = append(result.OrphanedFiles, OrphanedFile{
				FilePath:   path,
				FileSize:   info.Size(),
				CapturedAt: ExtractTimestampFromFile(path),
			})
			return nil
		})
	}

	return result, nil
}

// CleanupResult reports the outcome of removing missing-capture rows.
type CleanupResult struct {
	DeletedCount    int   `json:"deleted_count"`
	SizeRecovered   int64 `json:"size_recovered"`
	NewCaptureCount int   `json:"new_capture_count"`
	NewStorageSize  int64 `json:"new_storage_size"`
}

// CleanupMissing deletes the captures rows named by ids (which must all
// belong to jobID) and recomputes the job's stored stats. Mirrors
// cleanup_missing_captures.
func CleanupMissing(ctx context.Context, st *store.Store, jobID int64, ids []int64) (*CleanupResult, error) {
	deleted, recovered, err := st.DeleteCapturesByIDs(ctx, jobID, ids)
	if err != nil {
		return nil, fmt.Errorf("maintenance: cleanup job %d: %w", jobID, err)
	}
	if deleted != len(ids) {
		return nil, fmt.Errorf("maintenance: cleanup job %d: some capture IDs do not belong to this job", jobID)
	}

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("maintenance: cleanup job %d: refetch: %w", jobID, err)
	}

	return &CleanupResult{
		DeletedCount:    deleted,
		SizeRecovered:   recovered,
		NewCaptureCount: job.CaptureCount,
		NewStorageSize:  job.StorageSize,
	}, nil
}

// ImportResult reports the outcome of adding orphaned files to the database.
type ImportResult struct {
	ImportedCount     int   `json:"imported_count"`
	TotalSizeImported int64 `json:"total_size_imported"`
	NewCaptureCount   int   `json:"new_capture_count"`
	NewStorageSize    int64 `json:"new_storage_size"`
}

// ImportOrphaned inserts a captures row for each orphaned file still present
// on disk, skipping any that vanished between scan and import. Mirrors
// import_orphaned_files.
func ImportOrphaned(ctx context.Context, st *store.Store, jobID int64, files []OrphanedFile) (*ImportResult, error) {
	if _, err := st.GetJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("maintenance: import for job %d: %w", jobID, err)
	}

	var toImport []store.Capture
	for _, f := range files {
		if _, err := os.Stat(f.FilePath); err != nil {
			continue
		}
		toImport = append(toImport, store.Capture{
			JobID:      jobID,
			FilePath:   f.FilePath,
			FileSize:   f.FileSize,
			CapturedAt: f.CapturedAt,
		})
	}

	imported, totalSize, err := st.ImportCaptures(ctx, jobID, toImport)
	if err != nil {
		return nil, fmt.Errorf("maintenance: import for job %d: %w", jobID, err)
	}

	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("maintenance: import for job %d: refetch: %w", jobID, err)
	}

	return &ImportResult{
		ImportedCount:     imported,
		TotalSizeImported: totalSize,
		NewCaptureCount:   job.CaptureCount,
		NewStorageSize:    job.StorageSize,
	}, nil
}
