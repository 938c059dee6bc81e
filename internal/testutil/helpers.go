package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateDummyFile writes content to dir/name, creating parent directories, and
// returns the full path.
func CreateDummyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	fullPath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755), "Failed to create directory for dummy file %s", fullPath)
	require.NoError(t, os.WriteFile(fullPath, []byte(content), 0o644), "Failed to write dummy file %s", fullPath)
	return fullPath
}

// CreateDummyDir ensures dir/name exists and returns its path.
func CreateDummyDir(t *testing.T, dir, name string) string {
	t.Helper()
	fullPath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(fullPath, 0o755), "Failed to create dummy directory %s", fullPath)
	return fullPath
}

// Mail builds the header block of a message. Each header is written as given,
// so continuation lines must carry their leading tab.
func Mail(headers ...string) string {
	var b strings.Builder
	for _, h := range headers {
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString("\nbody\n")
	return b.String()
}

// CreateMailbox lays out a corpus under root: one subdirectory per mailbox,
// each holding count mail files with the given content. It returns every file
// path created.
func CreateMailbox(t *testing.T, root string, mailboxes []string, count int, content string) []string {
	t.Helper()
	var paths []string
	for _, box := range mailboxes {
		for i := 0; i < count; i++ {
			paths = append(paths, CreateDummyFile(t, root, filepath.Join(box, "inbox", fmt.Sprintf("%d.", i+1)), content))
		}
	}
	return paths
}

// ReadLines returns the non-empty lines of the file at path.
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read %s", path)
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
