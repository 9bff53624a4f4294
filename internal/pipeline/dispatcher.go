package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// Dispatcher hands tasks to background workers. The pipeline never blocks a
// poll request on worker availability: when no worker is free the dispatch
// fails and the work is simply retried on a later poll, since claims are
// only taken inside the workers (or released when dispatch fails).
type Dispatcher interface {
	// Dispatch schedules task for asynchronous execution. It returns an
	// error when no worker capacity is available.
	Dispatch(task func()) error

	// Release shuts the dispatcher down and discards queued tasks.
	Release()
}

// AntsDispatcher implements Dispatcher on a fixed-size goroutine pool.
type AntsDispatcher struct {
	pool *ants.Pool
}

// NewAntsDispatcher creates a pool of size workers. The pool is nonblocking:
// Dispatch fails immediately when all workers are busy. Panics inside tasks
// are logged rather than crashing the process.
func NewAntsDispatcher(size int, log *slog.Logger) (*AntsDispatcher, error) {
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v interface{}) {
			log.Error("pipeline: worker panic", slog.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create worker pool: %w", err)
	}
	return &AntsDispatcher{pool: pool}, nil
}

// Dispatch schedules task on the pool.
func (d *AntsDispatcher) Dispatch(task func()) error {
	if err := d.pool.Submit(task); err != nil {
		return fmt.Errorf("pipeline: dispatch: %w", err)
	}
	return nil
}

// Release shuts the pool down.
func (d *AntsDispatcher) Release() {
	d.pool.Release()
}
