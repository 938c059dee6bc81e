// Package cli wires a validated configuration to the analyzer: it picks the
// output mode, injects the process transport and prints the run summary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/mail-analyzer/internal/cli/hooks"
	"github.com/stackvity/mail-analyzer/internal/cli/runner"
	"github.com/stackvity/mail-analyzer/internal/cli/ui"
	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

// outputMode is the single progress surface active during a run.
type outputMode int

const (
	modePlain outputMode = iota
	modeProgressBar
	modeTUI
)

// progressThrottle bounds how often the progress bar redraws.
const progressThrottle = 65 * time.Millisecond

// stderrIsTerminal is replaced in tests.
var stderrIsTerminal = func() bool { return term.IsTerminal(int(os.Stderr.Fd())) }

// Run orchestrates the main application logic after configuration loading.
// It receives the application context, validated options, and the logger.
func Run(ctx context.Context, opts analyzer.Options, logger *slog.Logger) error {
	return run(ctx, opts, logger, os.Stdout, os.Stderr)
}

func run(ctx context.Context, opts analyzer.Options, logger *slog.Logger, stdout, stderr io.Writer) error {
	if opts.Method == analyzer.MethodProcess && opts.Transport == nil {
		self, err := os.Executable()
		if err != nil {
			logger.Error("Cannot locate own executable for worker processes", slog.Any("error", err))
			return fmt.Errorf("%w: locate executable: %w", analyzer.ErrTransport, err)
		}
		opts.Transport = runner.NewProcessTransport(self, runner.WorkerArgs(opts.Verbose, opts.HeaderCharset), opts.Logger)
	}

	mode := selectMode(opts, stderrIsTerminal())
	logger.Debug("Output mode selected", slog.Int("mode", int(mode)), slog.String("method", string(opts.Method)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		program *tea.Program
		tuiDone chan struct{}
		bar     hooks.ProgressBar
	)
	switch mode {
	case modeTUI:
		model := ui.NewModel(opts.AppVersion)
		program = tea.NewProgram(&model, tea.WithOutput(stderr), tea.WithContext(runCtx))
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil && runCtx.Err() == nil {
				logger.Warn("TUI exited with error", slog.Any("error", err))
			}
			// Quitting the TUI stops the run.
			cancel()
		}()
		opts.EventHooks = hooks.NewCLIHooks(logger, true, false, teaSender{program}, nil)
	case modeProgressBar:
		bar = newProgressBar(stderr)
		opts.EventHooks = hooks.NewCLIHooks(logger, false, false, nil, bar)
	default:
		opts.EventHooks = hooks.NewCLIHooks(logger, false, opts.Verbose, nil, nil)
	}

	report, err := analyzer.Analyze(runCtx, opts)

	if program != nil {
		program.Quit()
		<-tuiDone
	}
	if err != nil {
		logger.Error("Analysis failed", slog.Any("error", err))
	} else {
		logger.Info("Analysis finished",
			slog.Int("filesParsed", report.Summary.FilesParsed),
			slog.Int("senders", report.Summary.SenderCount),
			slog.Int("errors", report.Summary.ErrorCount),
		)
	}

	if mode != modeTUI && report.Summary.RunID != "" {
		if printErr := printSummary(stdout, report, opts.OutputFormat); printErr != nil {
			logger.Warn("Failed to print run summary", slog.Any("error", printErr))
		}
	}
	return err
}

// selectMode picks the TUI when asked for on a terminal, a progress bar on
// any other terminal, and plain logging otherwise. Verbose always logs.
func selectMode(opts analyzer.Options, interactive bool) outputMode {
	switch {
	case opts.Verbose || !interactive:
		return modePlain
	case opts.TuiEnabled:
		return modeTUI
	default:
		return modeProgressBar
	}
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(string(analyzer.PhaseEnumerate)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionClearOnFinish(),
	)
}

// printSummary writes the run summary to w in the requested format.
func printSummary(w io.Writer, report analyzer.Report, format analyzer.OutputFormat) error {
	if format == analyzer.OutputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	s := report.Summary
	status := "complete"
	if s.FatalErrorOccurred {
		status = "failed"
	}
	_, err := fmt.Fprintf(w, `Mail analysis %s (run %s)
  Method:        %s (%d workers)
  Directories:   %d
  Files listed:  %d
  Files parsed:  %d
  Senders:       %d
  Errors:        %d (lost: %d)
  Report:        %s
  Duration:      %.2fs
`, status, s.RunID, s.Method, s.Workers, s.Directories, s.FilesListed, s.FilesParsed,
		s.SenderCount, s.ErrorCount, s.LostCount, s.OutputFile, s.DurationSeconds)
	return err
}

// teaSender adapts *tea.Program to hooks.TUIProgram.
type teaSender struct{ p *tea.Program }

// Send implements hooks.TUIProgram.
func (s teaSender) Send(msg interface{}) { s.p.Send(msg) }
