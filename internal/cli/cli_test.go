package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/mail-analyzer/internal/testutil"
	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

func withTerminal(t *testing.T, interactive bool) {
	t.Helper()
	orig := stderrIsTerminal
	stderrIsTerminal = func() bool { return interactive }
	t.Cleanup(func() { stderrIsTerminal = orig })
}

func newRunOptions(t *testing.T) analyzer.Options {
	t.Helper()
	data := t.TempDir()
	testutil.CreateMailbox(t, data, []string{"alice"}, 2, testutil.Mail(
		"From: alice@example.com",
		"To: bob@example.com, carol@example.com",
		"Subject: hi",
	))
	return analyzer.Options{
		DataPath:           data,
		TemporaryDirectory: t.TempDir(),
		OutputFile:         filepath.Join(t.TempDir(), "report.txt"),
		Method:             analyzer.MethodChannel,
		CPUCoreMultiplier:  1,
		Workers:            2,
		ReportFormat:       analyzer.ReportFormatText,
		OutputFormat:       analyzer.OutputFormatText,
		Logger:             slog.NewTextHandler(io.Discard, nil),
	}
}

func TestSelectMode(t *testing.T) {
	testCases := []struct {
		name        string
		verbose     bool
		tui         bool
		interactive bool
		want        outputMode
	}{
		{"verbose always logs", true, true, true, modePlain},
		{"not a terminal", false, true, false, modePlain},
		{"tui on terminal", false, true, true, modeTUI},
		{"progress bar on terminal", false, false, true, modeProgressBar},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := analyzer.Options{Verbose: tc.verbose, TuiEnabled: tc.tui}
			assert.Equal(t, tc.want, selectMode(opts, tc.interactive))
		})
	}
}

func TestRun_PlainTextSummary(t *testing.T) {
	withTerminal(t, false)
	opts := newRunOptions(t)
	var stdout, stderr bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&stderr, nil))

	err := run(context.Background(), opts, logger, &stdout, &stderr)
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Mail analysis complete")
	assert.Contains(t, out, "Files parsed:  2")
	assert.Contains(t, out, "Senders:       1")
	assert.Contains(t, stderr.String(), "Analysis finished")

	lines := testutil.ReadLines(t, opts.OutputFile)
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "alice@example.com")
}

func TestRun_JSONSummary(t *testing.T) {
	withTerminal(t, false)
	opts := newRunOptions(t)
	opts.OutputFormat = analyzer.OutputFormatJSON
	var stdout bytes.Buffer

	err := run(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)), &stdout, io.Discard)
	require.NoError(t, err)

	var report analyzer.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, 2, report.Summary.FilesParsed)
	assert.Equal(t, analyzer.MethodChannel, report.Summary.Method)
}

func TestRun_ProgressBar(t *testing.T) {
	withTerminal(t, true)
	opts := newRunOptions(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)), &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Mail analysis complete")
}

func TestRun_InvalidOptions(t *testing.T) {
	withTerminal(t, false)
	opts := newRunOptions(t)
	opts.DataPath = filepath.Join(opts.DataPath, "missing")
	var stdout bytes.Buffer

	err := run(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)), &stdout, io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, analyzer.ErrConfigValidation)
	assert.Empty(t, stdout.String(), "no summary is printed when no run took place")
}

func TestPrintSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	report := analyzer.Report{Summary: analyzer.ReportSummary{RunID: "r1", FatalErrorOccurred: true, ErrorCount: 3, LostCount: 1}}
	require.NoError(t, printSummary(&buf, report, analyzer.OutputFormatText))
	assert.Contains(t, buf.String(), "Mail analysis failed (run r1)")
	assert.Contains(t, buf.String(), "Errors:        3 (lost: 1)")
}
