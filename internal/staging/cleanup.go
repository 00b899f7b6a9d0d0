package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alphapack/internal/logging"
)

// Scratch file kinds written into the work directory.
const (
	KindAudio    = "audio"
	KindEmbedded = "embedded"
	KindRemapped = "remapped"
)

var scratchKinds = []string{KindAudio, KindEmbedded, KindRemapped}

// ScratchPath returns the work directory file used by one run for kind,
// creating the directory when needed.
func ScratchPath(workDir, kind, jobID, ext string) (string, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return "", fmt.Errorf("work directory is not configured")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	return filepath.Join(workDir, kind+"-"+jobID+ext), nil
}

// CleanStaleResult contains the outcome of a stale scratch cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes scratch files older than maxAge. Runs that crash leave
// their scratch audio behind; anything else in the directory is ignored.
func CleanStale(ctx context.Context, workDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	entries, err := List(workDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: workDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(entry.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: entry.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale scratch file",
					logging.String("path", entry.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "scratch_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check work_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, entry.Path)
		if logger != nil {
			logger.Debug("removed stale scratch file",
				logging.String("path", entry.Path),
				logging.Duration("age", time.Since(entry.ModTime)),
				logging.String(logging.FieldEventType, "scratch_cleanup"),
			)
		}
	}
	return result
}

// Entry describes one scratch file.
type Entry struct {
	Name    string
	Path    string
	Kind    string
	JobID   string
	ModTime time.Time
	Size    int64
}

// List returns the scratch files in workDir. A missing directory is empty.
func List(workDir string) ([]Entry, error) {
	workDir = strings.TrimSpace(workDir)
	if workDir == "" {
		return nil, nil
	}
	dirEntries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		kind, jobID, ok := parseScratchName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(workDir, de.Name()),
			Kind:    kind,
			JobID:   jobID,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return out, nil
}

// TotalSize sums the sizes of entries.
func TotalSize(entries []Entry) int64 {
	var size int64
	for _, e := range entries {
		size += e.Size
	}
	return size
}

func parseScratchName(name string) (kind, jobID string, ok bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, k := range scratchKinds {
		if id, found := strings.CutPrefix(stem, k+"-"); found && id != "" {
			return k, id, true
		}
	}
	return "", "", false
}
