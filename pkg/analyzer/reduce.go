package analyzer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
)

// maxManifestLine bounds the length of one manifest line (one path).
const maxManifestLine = 1 << 20

// ReduceManifests concatenates the per-subdirectory manifests tempDir/<name>,
// in the order of subdirs, into the unified manifest at manifestPath. Any
// previous unified manifest is overwritten. A missing per-subdirectory
// manifest is logged and skipped; failure on the unified manifest itself is
// returned wrapped in ErrSharedFile. The result is synced before returning.
// It returns the number of entries written.
func ReduceManifests(subdirs []string, tempDir, manifestPath string, logger *slog.Logger) (int, error) {
	out, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: opening unified manifest '%s': %w", ErrSharedFile, manifestPath, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	total := 0
	for _, name := range subdirs {
		partPath := filepath.Join(tempDir, name)
		n, err := appendManifest(bw, partPath)
		if err != nil {
			if errors.Is(err, ErrSharedFile) {
				return total, err
			}
			logger.Warn("Skipping per-directory manifest", slog.String("path", partPath), slog.String("error", err.Error()))
			continue
		}
		total += n
	}
	if err := bw.Flush(); err != nil {
		return total, fmt.Errorf("%w: writing unified manifest '%s': %w", ErrSharedFile, manifestPath, err)
	}
	if err := out.Sync(); err != nil {
		return total, fmt.Errorf("%w: syncing unified manifest '%s': %w", ErrSharedFile, manifestPath, err)
	}
	logger.Debug("Manifests reduced", slog.Int("directories", len(subdirs)), slog.Int("entries", total))
	return total, nil
}

// appendManifest copies one per-subdirectory manifest line by line.
func appendManifest(w *bufio.Writer, partPath string) (int, error) {
	in, err := os.Open(partPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	defer in.Close()

	n := 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLine)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if _, err := w.Write(sc.Bytes()); err != nil {
			return n, fmt.Errorf("%w: %w", ErrSharedFile, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return n, fmt.Errorf("%w: %w", ErrSharedFile, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return n, nil
}

// ManifestEntries streams the non-empty lines of a manifest. The returned
// function reports the read error, if any, once the sequence has been consumed.
func ManifestEntries(r io.Reader) (iter.Seq[string], func() error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLine)
	seq := func(yield func(string) bool) {
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
	return seq, sc.Err
}
