package analyzer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Endpoint is the dispatcher's side of one worker: a command endpoint that
// accepts tasks and a completion endpoint that yields one Completion per
// non-Shutdown task.
type Endpoint interface {
	// Send hands a task to the worker. It must not block for long: the
	// dispatcher only sends to idle workers.
	Send(task Task) error
	// Completions yields completion signals. The channel is closed when the
	// worker terminates.
	Completions() <-chan Completion
	// Close releases the endpoint and waits for the worker to terminate.
	Close() error
}

// Transport starts workers and connects them to the dispatcher.
type Transport interface {
	Open(ctx context.Context, workerID int) (Endpoint, error)
}

// ChannelTransport runs each worker as a goroutine connected by typed channels.
type ChannelTransport struct {
	executor      Executor
	loggerHandler slog.Handler
}

// NewChannelTransport creates an in-process transport whose workers run tasks with exec.
func NewChannelTransport(exec Executor, loggerHandler slog.Handler) *ChannelTransport {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &ChannelTransport{executor: exec, loggerHandler: loggerHandler}
}

// Open implements Transport.
func (t *ChannelTransport) Open(ctx context.Context, workerID int) (Endpoint, error) {
	ep := &channelEndpoint{
		id:          workerID,
		commands:    make(chan Task, 1),
		completions: make(chan Completion, 1),
		exited:      make(chan struct{}),
	}
	logger := slog.New(t.loggerHandler).With(slog.String("component", "worker"), slog.Int("worker", workerID))

	receive := func() (Task, error) {
		task, ok := <-ep.commands
		if !ok {
			return nil, io.EOF
		}
		return task, nil
	}
	emit := func(c Completion) error {
		ep.completions <- c
		return nil
	}

	go func() {
		defer close(ep.exited)
		defer close(ep.completions)
		if err := serve(ctx, workerID, t.executor, receive, emit, logger); err != nil {
			logger.Error("Worker stopped on error", slog.String("error", err.Error()))
		}
	}()
	return ep, nil
}

type channelEndpoint struct {
	id          int
	commands    chan Task
	completions chan Completion
	exited      chan struct{}
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Send implements Endpoint.
func (e *channelEndpoint) Send(task Task) error {
	if e.closed.Load() {
		return fmt.Errorf("%w: worker %d endpoint closed", ErrTransport, e.id)
	}
	select {
	case <-e.exited:
		return fmt.Errorf("%w: worker %d has exited", ErrTransport, e.id)
	default:
	}
	select {
	case e.commands <- task:
		return nil
	case <-e.exited:
		return fmt.Errorf("%w: worker %d has exited", ErrTransport, e.id)
	}
}

// Completions implements Endpoint.
func (e *channelEndpoint) Completions() <-chan Completion { return e.completions }

// Close implements Endpoint.
func (e *channelEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.commands)
	})
	<-e.exited
	return nil
}
