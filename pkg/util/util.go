// Package util holds small filesystem helpers shared by the analyzer and the CLI.
package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirectoryExists reports whether path names an existing directory.
func DirectoryExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ParentDirExists reports whether the directory that would contain path exists.
func ParentDirExists(path string) bool {
	if path == "" {
		return false
	}
	return DirectoryExists(filepath.Dir(path))
}

// ListSubdirectories returns the names of the immediate subdirectories of root
// in directory-listing order. Files and symlinks at the top level are ignored.
func ListSubdirectories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// SyncDirectory flushes the named files inside dir, then the directory
// itself, to stable storage. Named files that do not exist are skipped; other
// entries of dir are never opened.
func SyncDirectory(dir string, names ...string) error {
	if !DirectoryExists(dir) {
		return fmt.Errorf("sync %s: %w", dir, os.ErrNotExist)
	}
	var errs []error
	for _, name := range names {
		if err := syncPath(filepath.Join(dir, name), os.O_RDONLY); err != nil {
			errs = append(errs, err)
		}
	}
	if err := syncPath(dir, os.O_RDONLY); err != nil && !errors.Is(err, os.ErrInvalid) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func syncPath(path string, flag int) error {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}
