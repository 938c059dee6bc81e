package analyzer

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// Enumerate writes the absolute path of every non-directory entry reachable
// under root to w, one per line. Symlinks are listed, never followed. A
// directory that cannot be read is logged and its subtree abandoned; entries
// already written are kept. The returned error is only set when w fails.
func Enumerate(root string, w io.Writer, logger *slog.Logger) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		logger.Warn("Cannot resolve directory path", slog.String("path", root), slog.String("error", err.Error()))
		return 0, nil
	}

	count := 0
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Cannot read directory, skipping subtree", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, err := io.WriteString(w, path+"\n"); err != nil {
			return fmt.Errorf("%w: writing manifest entry for '%s': %w", ErrWriteFailed, path, err)
		}
		count++
		return nil
	})
	return count, walkErr
}
