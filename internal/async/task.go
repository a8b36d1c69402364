// Package async tracks background work so callers and tests can await it.
//
// A Task is a single future. A Group tracks any number of fire-and-forget
// goroutines and can be waited on while new work is still being added.
package async

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Task is the eventual result of a function running in its own goroutine.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Go runs fn in a new goroutine and returns its Task.
// A panic in fn is recovered and reported as the task error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		var pc panics.Catcher
		pc.Try(func() {
			t.val, t.err = fn(ctx)
		})
		if r := pc.Recovered(); r != nil {
			t.err = r.AsError()
		}
	}()
	return t
}

// Resolved returns a Task that is already complete.
func Resolved[T any](val T, err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), val: val, err: err}
	close(t.done)
	return t
}

// Done is closed once the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
