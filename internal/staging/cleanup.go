package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioshelf/internal/logging"
)

const dirPrefix = "item-"

// Dir returns the staging directory for an item.
func Dir(stagingRoot, itemID string) string {
	return filepath.Join(stagingRoot, dirPrefix+itemID)
}

// ItemID extracts the item id from a staging directory name.
func ItemID(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, dirPrefix)
	return id, ok && id != ""
}

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanOrphaned removes item staging directories whose item is not active.
// Directories that do not follow the item naming are left alone.
func CleanOrphaned(ctx context.Context, stagingDir string, active map[string]struct{}, logger *slog.Logger) CleanResult {
	return clean(ctx, stagingDir, logger, "orphaned", func(name string, _ os.FileInfo) bool {
		id, ok := ItemID(name)
		if !ok {
			return false
		}
		_, live := active[id]
		return !live
	})
}

// CleanStale removes item staging directories older than maxAge.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, stagingDir, logger, "stale", func(name string, info os.FileInfo) bool {
		_, ok := ItemID(name)
		return ok && info.ModTime().Before(cutoff)
	})
}

func clean(ctx context.Context, stagingDir string, logger *slog.Logger, kind string, remove func(string, os.FileInfo) bool) CleanResult {
	result := CleanResult{}
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		dirPath := filepath.Join(stagingDir, entry.Name())
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !remove(entry.Name(), info) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove "+kind+" staging directory", "staging_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed "+kind+" staging directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}
