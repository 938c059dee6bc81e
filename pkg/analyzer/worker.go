package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// serve is the worker run loop shared by every transport: receive a task,
// run it to completion, emit one completion. Shutdown (or the end of the
// command stream) ends the loop without a completion.
func serve(ctx context.Context, id int, exec Executor, receive func() (Task, error), emit func(Completion) error, logger *slog.Logger) error {
	for {
		task, err := receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("Command stream closed, worker exiting")
				return nil
			}
			return err
		}
		if _, ok := task.(Shutdown); ok {
			logger.Debug("Shutdown received, worker exiting")
			return nil
		}

		c := Completion{WorkerID: id}
		if execErr := exec.Execute(ctx, task); execErr != nil {
			c.Error = execErr.Error()
		}
		if err := emit(c); err != nil {
			return fmt.Errorf("%w: worker %d cannot report completion: %w", ErrTransport, id, err)
		}
	}
}

// ServeWorker runs a worker over a byte stream pair: tasks arrive on r as
// JSON lines and completions leave on w as JSON lines. It is the body of a
// child worker process.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, exec Executor, id int, loggerHandler slog.Handler) error {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "worker"), slog.Int("worker", id))
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	receive := func() (Task, error) {
		for {
			line, err := br.ReadBytes('\n')
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				return DecodeTask(line)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	emit := func(c Completion) error {
		payload, err := EncodeCompletion(c)
		if err != nil {
			return err
		}
		if _, err := bw.Write(append(payload, '\n')); err != nil {
			return err
		}
		return bw.Flush()
	}

	logger.Debug("Worker started")
	return serve(ctx, id, exec, receive, emit, logger)
}
