// Package task provides a small future abstraction for running a blocking
// operation on a background goroutine and collecting its result later.
// It replaces the per-method "schedule on background, deliver on foreground"
// wrappers that would otherwise be hand-duplicated across every component.
package task

import "context"

// Task is a handle to an operation running in the background.
// The zero value is not usable; create one with Go.
type Task[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Go starts fn on a new goroutine and returns a handle to its eventual result.
// fn runs to completion once started; cancel the work through whatever context
// fn itself observes.
func Go[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}

	go func() {
		defer close(t.done)
		t.result, t.err = fn()
	}()

	return t
}

// Wait blocks until the task finishes or ctx is canceled. When ctx wins,
// the background operation keeps running; only this caller stops waiting.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the task finishes. Useful in select loops.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}
