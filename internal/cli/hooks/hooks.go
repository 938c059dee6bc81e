// Package hooks bridges analyzer run events to the CLI output layer: the TUI,
// a progress bar, or plain log lines.
package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

// --- TUI Message Structs ---

// PhaseStartMsg signals that a pipeline phase began. Total is the number of
// tasks the phase will dispatch, or 0 when the phase runs no tasks.
type PhaseStartMsg struct {
	Phase analyzer.Phase
	Total int
}

// TaskCompleteMsg signals that one task of a phase finished.
type TaskCompleteMsg struct {
	Phase    analyzer.Phase
	Path     string
	WorkerID int
	Error    string
	Lost     bool
}

// RunCompleteMsg signals the end of the run.
type RunCompleteMsg struct{ Report analyzer.Report }

// TUIProgram defines the interface needed to interact with the Bubble Tea program.
type TUIProgram interface {
	Send(msg interface{})
}

// ProgressBar is the subset of *progressbar.ProgressBar the hooks drive.
type ProgressBar interface {
	Add(num int) error
	Describe(description string)
	ChangeMax(newMax int)
	Reset()
	Close() error
}

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg interface{}) {}

// CLIHooks implements analyzer.Hooks. Exactly one output mode is active:
// TUI messages, verbose logging, a progress bar, or error-only logging.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar
	out            io.Writer
	mu             sync.Mutex // guards progressBar
}

// NewCLIHooks creates a new CLIHooks instance. Pass nil for tuiProg or
// progBar when not applicable.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) *CLIHooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	return &CLIHooks{
		logger:         logger.With(slog.String("component", "hooks")),
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
		out:            os.Stderr,
	}
}

// OnPhaseStart implements analyzer.Hooks.
func (h *CLIHooks) OnPhaseStart(phase analyzer.Phase, total int) error {
	switch {
	case h.tuiEnabled:
		h.tuiProgram.Send(PhaseStartMsg{Phase: phase, Total: total})
	case h.verboseEnabled:
		h.logger.Debug("Phase starting", slog.String("phase", string(phase)), slog.Int("tasks", total))
	case h.progressBar != nil:
		h.mu.Lock()
		h.progressBar.Reset()
		if total > 0 {
			h.progressBar.ChangeMax(total)
		} else {
			h.progressBar.ChangeMax(-1) // spinner
		}
		h.progressBar.Describe(string(phase))
		h.mu.Unlock()
	}
	return nil
}

// OnTaskComplete implements analyzer.Hooks. It is called concurrently by the
// direct method.
func (h *CLIHooks) OnTaskComplete(phase analyzer.Phase, c analyzer.Completion) error {
	path := analyzer.TaskPath(c.Task)
	if h.tuiEnabled {
		h.tuiProgram.Send(TaskCompleteMsg{Phase: phase, Path: path, WorkerID: c.WorkerID, Error: c.Error, Lost: c.Lost})
		return nil
	}

	attrs := []any{
		slog.String("phase", string(phase)),
		slog.String("path", path),
		slog.Int("worker", c.WorkerID),
	}
	if c.Failed() {
		msg := "Task failed"
		if c.Lost {
			msg = "Task lost with its worker"
		}
		h.logger.Error(msg, append(attrs, slog.String("error", c.Error))...)
	} else if h.verboseEnabled {
		h.logger.Debug("Task complete", attrs...)
	}

	if !h.verboseEnabled && h.progressBar != nil {
		h.mu.Lock()
		_ = h.progressBar.Add(1)
		h.mu.Unlock()
	}
	return nil
}

// OnRunComplete implements analyzer.Hooks.
func (h *CLIHooks) OnRunComplete(report analyzer.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if !h.verboseEnabled && h.progressBar != nil {
		h.mu.Lock()
		_ = h.progressBar.Close()
		h.mu.Unlock()
		// Keep the shell prompt off the bar's line.
		_, _ = fmt.Fprintln(h.out)
	}
	return nil
}
