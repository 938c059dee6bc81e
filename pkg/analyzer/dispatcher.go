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

// Pool runs tasks on a bounded set of workers. The same Pool serves every
// phase of a run; Dispatch may be called repeatedly before Shutdown.
type Pool interface {
	// Dispatch assigns every task of the sequence to exactly one worker and
	// returns once all of them have completed. onComplete is called once per
	// task, from a single goroutine at a time. After a cancelled Dispatch the
	// pool may only be shut down.
	Dispatch(ctx context.Context, tasks iter.Seq[Task], onComplete func(Completion)) (DispatchStats, error)
	// Size returns the maximum number of tasks in flight.
	Size() int
	// Shutdown terminates every worker and waits for them. It is idempotent.
	Shutdown() error
}

// DispatchStats counts the outcomes of one Dispatch call.
type DispatchStats struct {
	Assigned  int `json:"assigned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Lost      int `json:"lost"`
}

// workerHandle is the dispatcher-owned state of one worker.
type workerHandle struct {
	id       int
	endpoint Endpoint
	current  Task
	busy     bool
	dead     bool
}

// Dispatcher implements Pool over persistent workers reached through a Transport.
//
// The dispatch loop is single threaded. Completions from every worker are
// fanned into one channel, which the loop blocks on whenever no worker is
// idle or no task is left to hand out.
type Dispatcher struct {
	logger      *slog.Logger
	handles     []*workerHandle
	completions chan Completion
	closing     chan struct{}
	fanIn       sync.WaitGroup
	busy        atomic.Int64
	closed      bool
}

// NewDispatcher opens size workers through transport. If any worker fails to
// start, the ones already started are shut down and ErrTransport is returned.
func NewDispatcher(ctx context.Context, transport Transport, size int, loggerHandler slog.Handler) (*Dispatcher, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: worker pool size must be at least 1, got %d", ErrConfigValidation, size)
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport cannot be nil", ErrConfigValidation)
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	d := &Dispatcher{
		logger:      slog.New(loggerHandler).With(slog.String("component", "dispatcher")),
		handles:     make([]*workerHandle, 0, size),
		completions: make(chan Completion),
		closing:     make(chan struct{}),
	}
	for id := 0; id < size; id++ {
		ep, err := transport.Open(ctx, id)
		if err != nil {
			d.logger.Error("Failed to start worker", slog.Int("worker", id), slog.String("error", err.Error()))
			_ = d.Shutdown()
			return nil, fmt.Errorf("%w: starting worker %d: %w", ErrTransport, id, err)
		}
		d.handles = append(d.handles, &workerHandle{id: id, endpoint: ep})
		d.fanIn.Add(1)
		go d.forward(id, ep.Completions())
	}
	d.logger.Debug("Worker pool started", slog.Int("workers", size))
	return d, nil
}

// forward relays one worker's completions into the shared channel. When the
// worker's stream ends, a Lost completion tells the loop the worker is gone.
func (d *Dispatcher) forward(id int, in <-chan Completion) {
	defer d.fanIn.Done()
	for c := range in {
		c.WorkerID = id
		select {
		case d.completions <- c:
		case <-d.closing:
			return
		}
	}
	select {
	case d.completions <- Completion{WorkerID: id, Lost: true, Error: "worker completion stream closed"}:
	case <-d.closing:
	}
}

// Size implements Pool.
func (d *Dispatcher) Size() int { return len(d.handles) }

// Busy returns the number of workers currently holding a task.
func (d *Dispatcher) Busy() int { return int(d.busy.Load()) }

// Dispatch implements Pool.
//
// The first Size() tasks go to the idle workers in task order. After that,
// each completion frees its worker, which immediately receives the next task.
// Once the sequence is exhausted the loop drains the remaining busy workers.
// Cancelling ctx stops the loop; tasks already handed out keep running and
// their workers stay marked busy, so the pool must be shut down afterwards
// rather than dispatched to again.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks iter.Seq[Task], onComplete func(Completion)) (DispatchStats, error) {
	var stats DispatchStats
	if d.closed {
		return stats, ErrPoolClosed
	}
	if onComplete == nil {
		onComplete = func(Completion) {}
	}

	next, stop := iter.Pull(tasks)
	defer stop()
	exhausted := false

	fill := func() {
		for _, h := range d.handles {
			if exhausted {
				return
			}
			if h.busy || h.dead {
				continue
			}
			task, ok := next()
			if !ok {
				exhausted = true
				return
			}
			d.assign(h, task, &stats, onComplete)
		}
	}

	fill()
	for {
		if d.busy.Load() == 0 {
			if exhausted {
				return stats, nil
			}
			if d.live() == 0 {
				d.logger.Error("No live workers left, abandoning remaining tasks")
				return stats, fmt.Errorf("%w: every worker has failed", ErrTransport)
			}
			fill()
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Warn("Dispatch interrupted", slog.Int("busy", d.Busy()), slog.String("error", ctx.Err().Error()))
			return stats, ctx.Err()
		case c := <-d.completions:
			d.settle(c, &stats, onComplete)
			fill()
		}
	}
}

// assign hands a task to an idle worker. A failed send loses the task and
// retires the worker.
func (d *Dispatcher) assign(h *workerHandle, task Task, stats *DispatchStats, onComplete func(Completion)) {
	if err := h.endpoint.Send(task); err != nil {
		h.dead = true
		stats.Lost++
		d.logger.Error("Failed to send task to worker",
			slog.Int("worker", h.id),
			slog.String("kind", string(task.Kind())),
			slog.String("path", taskPath(task)),
			slog.String("error", err.Error()))
		onComplete(Completion{WorkerID: h.id, Task: task, Error: err.Error(), Lost: true})
		return
	}
	h.busy = true
	h.current = task
	d.busy.Add(1)
	stats.Assigned++
}

// settle applies one completion to the worker table.
func (d *Dispatcher) settle(c Completion, stats *DispatchStats, onComplete func(Completion)) {
	if c.WorkerID < 0 || c.WorkerID >= len(d.handles) {
		d.logger.Warn("Completion from unknown worker ignored", slog.Int("worker", c.WorkerID))
		return
	}
	h := d.handles[c.WorkerID]
	if c.Lost {
		if h.dead {
			return
		}
		h.dead = true
		d.logger.Error("Worker terminated unexpectedly", slog.Int("worker", h.id), slog.Bool("busy", h.busy))
		if !h.busy {
			return
		}
	} else if !h.busy {
		d.logger.Warn("Completion from idle worker ignored", slog.Int("worker", h.id))
		return
	}

	c.Task = h.current
	h.busy = false
	h.current = nil
	d.busy.Add(-1)

	switch {
	case c.Lost:
		stats.Lost++
	case c.Error != "":
		stats.Completed++
		stats.Failed++
	default:
		stats.Completed++
	}
	onComplete(c)
}

func (d *Dispatcher) live() int {
	n := 0
	for _, h := range d.handles {
		if !h.dead {
			n++
		}
	}
	return n
}

// Shutdown implements Pool. Every live worker receives a Shutdown task; no
// completion is expected for it. Endpoints are then closed concurrently and
// the call returns once every worker has terminated.
func (d *Dispatcher) Shutdown() error {
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.closing)

	var g errgroup.Group
	for _, h := range d.handles {
		g.Go(func() error {
			if !h.dead {
				if err := h.endpoint.Send(Shutdown{}); err != nil {
					d.logger.Warn("Failed to send shutdown to worker", slog.Int("worker", h.id), slog.String("error", err.Error()))
				}
			}
			if err := h.endpoint.Close(); err != nil {
				return fmt.Errorf("%w: closing worker %d: %w", ErrTransport, h.id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	d.fanIn.Wait()
	d.logger.Debug("Worker pool shut down", slog.Int("workers", len(d.handles)))
	return err
}
