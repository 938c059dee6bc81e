package analyzer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stackvity/mail-analyzer/pkg/analyzer/encoding"
)

// Executor runs a single task to completion. Implementations MUST be safe
// for concurrent use: every worker of a pool shares one Executor.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

// TaskExecutor is the default Executor: it enumerates directories into
// manifests and parses mail files into the shared record file.
type TaskExecutor struct {
	logger  *slog.Logger
	decoder encoding.HeaderDecoder
}

// NewTaskExecutor creates a TaskExecutor. A nil decoder leaves header bytes untouched.
func NewTaskExecutor(loggerHandler slog.Handler, decoder encoding.HeaderDecoder) *TaskExecutor {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &TaskExecutor{
		logger:  slog.New(loggerHandler).With(slog.String("component", "executor")),
		decoder: decoder,
	}
}

// Execute implements Executor.
func (x *TaskExecutor) Execute(_ context.Context, task Task) error {
	switch t := task.(type) {
	case EnumerateDirectory:
		return x.enumerate(t)
	case ParseFile:
		return x.parse(t)
	case Shutdown:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownTask, task)
	}
}

func (x *TaskExecutor) enumerate(t EnumerateDirectory) error {
	out, err := os.Create(t.OutputPath)
	if err != nil {
		x.logger.Error("Cannot create manifest", slog.String("path", t.OutputPath), slog.String("error", err.Error()))
		return fmt.Errorf("%w: creating manifest '%s': %w", ErrWriteFailed, t.OutputPath, err)
	}
	bw := bufio.NewWriter(out)
	n, walkErr := Enumerate(t.SourcePath, bw, x.logger)
	flushErr := bw.Flush()
	syncErr := out.Sync()
	closeErr := out.Close()

	for _, err := range []error{walkErr, flushErr, syncErr, closeErr} {
		if err != nil {
			x.logger.Error("Manifest write failed", slog.String("path", t.OutputPath), slog.String("error", err.Error()))
			return fmt.Errorf("%w: manifest '%s': %w", ErrWriteFailed, t.OutputPath, err)
		}
	}
	x.logger.Debug("Directory enumerated", slog.String("path", t.SourcePath), slog.Int("entries", n))
	return nil
}

func (x *TaskExecutor) parse(t ParseFile) error {
	in, err := os.Open(t.FilePath)
	if err != nil {
		x.logger.Warn("Cannot open mail file", slog.String("path", t.FilePath), slog.String("error", err.Error()))
		return fmt.Errorf("%w: '%s': %w", ErrReadFailed, t.FilePath, err)
	}
	rec, err := ParseMail(in, x.decoder)
	_ = in.Close()
	if err != nil {
		x.logger.Warn("Cannot read mail file", slog.String("path", t.FilePath), slog.String("error", err.Error()))
		return fmt.Errorf("'%s': %w", t.FilePath, err)
	}

	recordPath := filepath.Join(t.OutputDir, RecordFileName)
	if err := AppendRecord(recordPath, rec); err != nil {
		x.logger.Error("Cannot append record", slog.String("path", recordPath), slog.String("mail", t.FilePath), slog.String("error", err.Error()))
		return err
	}
	x.logger.Debug("Mail parsed", slog.String("path", t.FilePath), slog.String("sender", rec.Sender), slog.Int("recipients", len(rec.Recipients)))
	return nil
}
