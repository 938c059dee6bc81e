package analyzer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DirectRunner implements Pool without persistent workers: each task runs in
// its own goroutine, and at most Size() of them run at once.
type DirectRunner struct {
	executor Executor
	size     int
	logger   *slog.Logger
	busy     atomic.Int64
	closed   atomic.Bool
}

// NewDirectRunner creates a DirectRunner bounded to size concurrent tasks.
func NewDirectRunner(exec Executor, size int, loggerHandler slog.Handler) (*DirectRunner, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: worker pool size must be at least 1, got %d", ErrConfigValidation, size)
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: executor cannot be nil", ErrConfigValidation)
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &DirectRunner{
		executor: exec,
		size:     size,
		logger:   slog.New(loggerHandler).With(slog.String("component", "directRunner")),
	}, nil
}

// Size implements Pool.
func (r *DirectRunner) Size() int { return r.size }

// Busy returns the number of tasks currently running.
func (r *DirectRunner) Busy() int { return int(r.busy.Load()) }

// Dispatch implements Pool.
func (r *DirectRunner) Dispatch(ctx context.Context, tasks iter.Seq[Task], onComplete func(Completion)) (DispatchStats, error) {
	var stats DispatchStats
	if r.closed.Load() {
		return stats, ErrPoolClosed
	}
	if onComplete == nil {
		onComplete = func(Completion) {}
	}

	// Slot ids stand in for worker ids in completions.
	slots := make(chan int, r.size)
	for i := 0; i < r.size; i++ {
		slots <- i
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		assigned int
	)
	g.SetLimit(r.size)
	for task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if _, ok := task.(Shutdown); ok {
			continue
		}
		assigned++
		g.Go(func() error {
			id := <-slots
			defer func() { slots <- id }()

			r.busy.Add(1)
			execErr := r.executor.Execute(ctx, task)
			r.busy.Add(-1)

			c := Completion{WorkerID: id, Task: task}
			mu.Lock()
			defer mu.Unlock()
			stats.Completed++
			if execErr != nil {
				c.Error = execErr.Error()
				stats.Failed++
			}
			onComplete(c)
			return nil
		})
	}
	_ = g.Wait()
	stats.Assigned = assigned

	if err := ctx.Err(); err != nil {
		r.logger.Warn("Dispatch interrupted", slog.String("error", err.Error()))
		return stats, err
	}
	return stats, nil
}

// Shutdown implements Pool. There are no workers to stop.
func (r *DirectRunner) Shutdown() error {
	r.closed.Store(true)
	return nil
}
