// Package pathing builds the on-disk layout for captures and their
// thumbnails. It is adapted from the teacher's internal/cache/path.go, which
// derived a stable, sanitized path from an asset ID; here the same
// stable-path-from-input idea is applied to capture filenames (pattern
// substitution) and thumbnail paths (hash-sharded, so a single job directory
// never accumulates an unindexable number of thumbnail files).
package pathing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CaptureDir returns the hierarchical YYYY/MM/DD/HH directory a capture
// taken at t belongs under, rooted at capturePath.
func CaptureDir(capturePath string, t time.Time) string {
	return filepath.Join(
		capturePath,
		strconv.Itoa(t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		fmt.Sprintf("%02d", t.Hour()),
	)
}

// FormatFilename substitutes {job_name}, {num:06d}/{num}, {timestamp}, and
// {created_timestamp} placeholders in a naming pattern. num is zero-padded to
// the width requested in a "{num:0Nd}" placeholder, or left unpadded for a
// bare "{num}".
func FormatFilename(pattern, jobName string, num int, t time.Time) string {
	out := pattern
	timestamp := t.Format("20060102_150405")

	out = replaceNumPlaceholder(out, num)
	out = strings.ReplaceAll(out, "{job_name}", jobName)
	out = strings.ReplaceAll(out, "{timestamp}", timestamp)
	out = strings.ReplaceAll(out, "{created_timestamp}", timestamp)
	return sanitizeFilename(out)
}

// replaceNumPlaceholder handles both "{num}" and the Python-style
// "{num:06d}" width specifier the original naming patterns use.
func replaceNumPlaceholder(pattern string, num int) string {
	for {
		start := strings.Index(pattern, "{num")
		if start == -1 {
			return pattern
		}
		end := strings.Index(pattern[start:], "}")
		if end == -1 {
			return pattern
		}
		end += start
		spec := pattern[start : end+1] // e.g. "{num:06d}" or "{num}"

		width := 0
		if colon := strings.Index(spec, ":"); colon != -1 {
			digits := strings.TrimSuffix(spec[colon+1:len(spec)-1], "d")
			if w, err := strconv.Atoi(digits); err == nil {
				width = w
			}
		}

		rendered := strconv.Itoa(num)
		if width > len(rendered) {
			rendered = strings.Repeat("0", width-len(rendered)) + rendered
		}
		pattern = pattern[:start] + rendered + pattern[end+1:]
	}
}

func sanitizeFilename(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")
	s := r.Replace(name)
	if s == "" {
		s = "capture"
	}
	return s
}

// ThumbnailPath computes the hash-sharded thumbnail location for a capture
// file at imagePath, rooted at the given job directory:
//
//	<jobDir>/thumbs/<hash[0]>/<hash[1:3]>/<basename-without-ext>.webp
//
// Sharding on the first three hex digits of an md5 of the full path keeps
// any single directory from accumulating more than ~1/4096th of the job's
// thumbnails.
func ThumbnailPath(jobDir, imagePath string) string {
	sum := md5.Sum([]byte(imagePath))
	digest := hex.EncodeToString(sum[:])

	base := filepath.Base(imagePath)
	nameNoExt := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(jobDir, "thumbs", digest[0:1], digest[1:3], nameNoExt+".webp")
}
