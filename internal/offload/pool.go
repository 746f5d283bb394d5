// Package offload runs blocking inference calls on a bounded set of workers so
// request handlers only wait on futures.
package offload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"golang.org/x/sync/semaphore"
)

// ErrTaskPanicked wraps a panic raised inside a submitted task.
var ErrTaskPanicked = errors.New("offloaded task panicked")

const (
	logFmtTaskPanicked  = "Offloaded task %s panicked: %v"
	logFmtTaskAbandoned = "Caller stopped waiting for %s; task keeps running"
	logFmtTaskFinished  = "Offloaded task %s finished in %s"
)

// Pool bounds the number of tasks executing at the same time. Tasks run
// detached from the submitter's cancellation: cancelling the awaiting context
// abandons the wait, never the work.
type Pool struct {
	slots    *semaphore.Weighted
	log      *logger.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// New creates a pool running at most workers tasks at once.
func New(workers int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{slots: semaphore.NewWeighted(int64(workers)), log: log}
}

// InFlight returns the number of submitted tasks that have not finished,
// queued ones included.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Wait blocks until every submitted task has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for offloaded tasks: %w", ctx.Err())
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	name  string
	log   *logger.Logger
	done  chan struct{}
	value T
	err   error
}

// Await returns the task result, or ctx.Err() if ctx ends first.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		f.log.Warn(logFmtTaskAbandoned, f.name)

		var zero T

		return zero, ctx.Err()
	}
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit schedules fn on the pool and returns its future. fn receives a
// context carrying the values of ctx but not its cancellation.
func Submit[T any](ctx context.Context, pool *Pool, name string, fn func(context.Context) (T, error)) *Future[T] {
	future := &Future[T]{name: name, log: pool.log, done: make(chan struct{})}
	taskCtx := context.WithoutCancel(ctx)

	pool.wg.Add(1)
	pool.inFlight.Add(1)

	go func() {
		defer func() {
			pool.inFlight.Add(-1)
			pool.wg.Done()
		}()

		// taskCtx is never cancelled, so Acquire only returns once a slot is free.
		_ = pool.slots.Acquire(taskCtx, 1)
		defer pool.slots.Release(1)

		started := time.Now()
		future.value, future.err = protect(pool.log, name, func() (T, error) { return fn(taskCtx) })
		pool.log.Info(logFmtTaskFinished, name, time.Since(started).Round(time.Millisecond))

		close(future.done)
	}()

	return future
}

// Run submits fn and awaits its result.
func Run[T any](ctx context.Context, pool *Pool, name string, fn func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, pool, name, fn).Await(ctx)
}

func protect[T any](log *logger.Logger, name string, fn func() (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error(logFmtTaskPanicked, name, recovered)

			var zero T

			value, err = zero, fmt.Errorf("%w: %s: %v", ErrTaskPanicked, name, recovered)
		}
	}()

	return fn()
}
