// Package dispatcher runs background tasks on a bounded worker pool so request handlers can
// return before slow work finishes.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edunexus/governance/internal/observability/metrics"
	"github.com/edunexus/governance/internal/observability/statsd"
)

var (
	// ErrQueueFull is returned when every queue slot is taken.
	ErrQueueFull = errors.New("dispatcher queue is full")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("dispatcher is closed")
)

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// OnFailure receives the error or *PanicError from Run. It runs on the worker goroutine.
	OnFailure func(ctx context.Context, err error)
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

// Unwrap exposes a panic value that is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Options configures a Dispatcher.
type Options struct {
	Workers   int // defaults to 4
	QueueSize int // defaults to 64
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// Dispatcher owns a fixed set of workers draining a bounded queue.
//
// Tasks run on a context detached from the dispatching request: once accepted, a task runs to
// completion. Close stops intake and waits for queued tasks to finish.
type Dispatcher struct {
	logger  *slog.Logger
	metrics statsd.Sink
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan Task

	group *errgroup.Group
	done  chan struct{}
}

// New starts the worker pool.
func New(opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		logger:  logger.With("component", "dispatcher"),
		metrics: opts.Metrics,
		workers: workers,
		queue:   make(chan Task, size),
		group:   &errgroup.Group{},
		done:    make(chan struct{}),
	}
	for range workers {
		d.group.Go(func() error {
			d.work()
			return nil
		})
	}
	go func() {
		_ = d.group.Wait()
		close(d.done)
	}()
	return d
}

// Dispatch enqueues task without blocking.
func (d *Dispatcher) Dispatch(task Task) error {
	if task.Run == nil {
		return errors.New("task run func is required")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.EmitDispatchRejected(d.metrics, "closed")
		return ErrClosed
	}
	select {
	case d.queue <- task:
		metrics.EmitQueueDepth(d.metrics, len(d.queue))
		return nil
	default:
		metrics.EmitDispatchRejected(d.metrics, "queue_full")
		d.logger.Warn("dispatch rejected, queue full", "task", task.Name, "queue_size", cap(d.queue))
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops intake and waits for queued and running tasks, or until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatcher: %w", ctx.Err())
	}
}

// Run blocks until ctx ends, then drains within shutdownTimeout.
func (d *Dispatcher) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	d.logger.InfoContext(ctx, "dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	d.logger.InfoContext(ctx, "dispatcher draining", "pending", d.Pending())
	return d.Close(drainCtx)
}

func (d *Dispatcher) work() {
	for task := range d.queue {
		metrics.EmitQueueDepth(d.metrics, len(d.queue))
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task Task) {
	ctx := context.Background()
	start := time.Now()

	err := safeRun(task.Name, func() error { return task.Run(ctx) })
	if err == nil {
		d.logger.Debug("task finished", "task", task.Name, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		d.logger.Error("task panicked", "task", task.Name, "panic", pe.Value, "stack", string(pe.Stack))
	} else {
		d.logger.Warn("task failed", "task", task.Name, "error", err)
	}

	if task.OnFailure == nil {
		return
	}
	if hookErr := safeRun(task.Name+".on_failure", func() error {
		task.OnFailure(ctx, err)
		return nil
	}); hookErr != nil {
		d.logger.Error("task failure hook panicked", "task", task.Name, "error", hookErr)
	}
}

// safeRun converts a panic in fn into a *PanicError.
func safeRun(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: name, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
