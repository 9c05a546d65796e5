// Package future provides a one-shot, goroutine-safe result container.
//
// A Future is resolved at most once; the first value passed to Resolve is the
// only value any reader ever observes. Readers may block without bound (Get),
// for a bounded duration (GetTimeout) or until a context ends (Wait).
package future

import (
	"context"
	"sync"
	"time"
)

// Future holds the eventual result of an event.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
}

// New returns an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores result and wakes every waiter. It reports whether this call
// won; later calls are no-ops.
func (f *Future[T]) Resolve(result T) bool {
	won := false
	f.once.Do(func() {
		f.result = result
		close(f.done)
		won = true
	})
	return won
}

// IsDone reports whether the Future has been resolved. It never blocks.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on resolution, for use in select statements.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the Future is resolved and returns the result. It cannot
// be abandoned; use Wait or GetTimeout when the caller needs a way out.
func (f *Future[T]) Get() T {
	<-f.done
	return f.result
}

// GetTimeout returns the result if it is available within timeout. The
// second return value is false when the timeout elapsed first. An already
// resolved Future returns immediately; a non-positive timeout only checks.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, bool) {
	if f.IsDone() || timeout <= 0 {
		return f.peek()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.result, true
	case <-timer.C:
		return f.peek()
	}
}

// Wait blocks until the Future is resolved or ctx ends. When ctx ends first
// the result stays available to later readers.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, nil
	default:
	}

	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) peek() (T, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		var zero T
		return zero, false
	}
}
