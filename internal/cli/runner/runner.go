// Package runner implements the process transport: each worker is a child
// process speaking JSON lines over its stdin and stdout.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/stackvity/mail-analyzer/pkg/analyzer"
)

const (
	// maxLogOutputBytes limits the size of a malformed line echoed in logs.
	maxLogOutputBytes = 1024
	// completionBuffer is the capacity of each endpoint's completion channel.
	completionBuffer = 1
)

// ArgsFunc builds the command line arguments for the worker with the given id.
type ArgsFunc func(workerID int) []string

// ProcessTransport starts each worker as a child process of executable.
type ProcessTransport struct {
	executable string
	args       ArgsFunc
	stderr     io.Writer
	logger     *slog.Logger
}

// NewProcessTransport creates a transport that runs executable with args(id)
// for every worker. Worker stderr is forwarded to the parent's stderr.
func NewProcessTransport(executable string, args ArgsFunc, loggerHandler slog.Handler) *ProcessTransport {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if args == nil {
		args = func(int) []string { return nil }
	}
	return &ProcessTransport{
		executable: executable,
		args:       args,
		stderr:     os.Stderr,
		logger:     slog.New(loggerHandler).With(slog.String("component", "processTransport")),
	}
}

// WorkerArgs returns the arguments of the hidden worker subcommand.
func WorkerArgs(verbose bool, headerCharset string) ArgsFunc {
	return func(id int) []string {
		args := []string{"worker", "--id", fmt.Sprint(id)}
		if headerCharset != "" {
			args = append(args, "--header-charset", headerCharset)
		}
		if verbose {
			args = append(args, "-v")
		}
		return args
	}
}

// Open implements analyzer.Transport.
func (t *ProcessTransport) Open(ctx context.Context, workerID int) (analyzer.Endpoint, error) {
	if t.executable == "" {
		return nil, fmt.Errorf("%w: worker executable cannot be empty", analyzer.ErrTransport)
	}
	logArgs := []any{slog.Int("worker", workerID)}

	cmd := exec.CommandContext(ctx, t.executable, t.args(workerID)...)
	cmd.Stderr = t.stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		t.logger.Error("Failed to create stdin pipe for worker", append(logArgs, slog.Any("error", err))...)
		return nil, fmt.Errorf("%w: stdin pipe for worker %d: %w", analyzer.ErrTransport, workerID, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		t.logger.Error("Failed to create stdout pipe for worker", append(logArgs, slog.Any("error", err))...)
		return nil, fmt.Errorf("%w: stdout pipe for worker %d: %w", analyzer.ErrTransport, workerID, err)
	}
	if startErr := cmd.Start(); startErr != nil {
		t.logger.Error("Failed to start worker process", append(logArgs, slog.String("command", t.executable), slog.Any("error", startErr))...)
		return nil, fmt.Errorf("%w: start worker %d: %w", analyzer.ErrTransport, workerID, startErr)
	}
	t.logger.Debug("Worker process started", append(logArgs, slog.Int("pid", cmd.Process.Pid))...)

	ep := &processEndpoint{
		id:          workerID,
		cmd:         cmd,
		stdin:       stdinPipe,
		completions: make(chan analyzer.Completion, completionBuffer),
		readerDone:  make(chan struct{}),
		logger:      t.logger.With(logArgs...),
	}
	go ep.readCompletions(stdoutPipe)
	return ep, nil
}

type processEndpoint struct {
	id     int
	cmd    *exec.Cmd
	logger *slog.Logger

	mu     sync.Mutex
	stdin  io.WriteCloser
	closed bool

	completions chan analyzer.Completion
	readerDone  chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// readCompletions decodes one completion per stdout line until EOF. A
// malformed line ends the stream: the worker is treated as gone and the rest
// of its output is discarded so that it can still exit.
func (e *processEndpoint) readCompletions(stdout io.Reader) {
	defer close(e.readerDone)
	defer close(e.completions)

	br := bufio.NewReader(stdout)
	for {
		line, err := br.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			c, decodeErr := analyzer.DecodeCompletion(line)
			if decodeErr != nil {
				logLine := string(line)
				if len(logLine) > maxLogOutputBytes {
					logLine = logLine[:maxLogOutputBytes] + "... (truncated)"
				}
				e.logger.Error("Malformed completion from worker", slog.String("line", logLine), slog.Any("error", decodeErr))
				_, _ = io.Copy(io.Discard, br)
				return
			}
			c.WorkerID = e.id
			e.completions <- c
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				e.logger.Warn("Error reading worker stdout", slog.Any("error", err))
			}
			return
		}
	}
}

// Send implements analyzer.Endpoint.
func (e *processEndpoint) Send(task analyzer.Task) error {
	payload, err := analyzer.EncodeTask(task)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: worker %d endpoint closed", analyzer.ErrTransport, e.id)
	}
	if _, writeErr := e.stdin.Write(append(payload, '\n')); writeErr != nil {
		if errors.Is(writeErr, syscall.EPIPE) || errors.Is(writeErr, os.ErrClosed) {
			return fmt.Errorf("%w: worker %d has exited: %w", analyzer.ErrTransport, e.id, writeErr)
		}
		return fmt.Errorf("%w: write to worker %d: %w", analyzer.ErrTransport, e.id, writeErr)
	}
	return nil
}

// Completions implements analyzer.Endpoint.
func (e *processEndpoint) Completions() <-chan analyzer.Completion { return e.completions }

// Close implements analyzer.Endpoint. Closing stdin ends the worker's command
// stream; Close then waits for stdout to drain and for the process to exit.
func (e *processEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		if err := e.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) && !strings.Contains(err.Error(), "file already closed") {
			e.logger.Warn("Error closing worker stdin", slog.Any("error", err))
		}
		e.mu.Unlock()

		<-e.readerDone
		if waitErr := e.cmd.Wait(); waitErr != nil {
			exitCode := -1
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
			e.logger.Warn("Worker process exited with error", slog.Int("exitCode", exitCode), slog.Any("error", waitErr))
			e.closeErr = fmt.Errorf("%w: worker %d exited with code %d: %w", analyzer.ErrTransport, e.id, exitCode, waitErr)
			return
		}
		e.logger.Debug("Worker process exited")
	})
	return e.closeErr
}
