// Package task wraps a remote operation with the uniform
// data/loading/refetch lifecycle consumers use to drive gateway calls.
package task

import (
	"context"
	"sync"
)

// Task tracks the latest result of a wrapped operation. Each activation is
// stamped with a generation; a resolution is applied only while its
// generation is still current, so a slow stale call cannot clobber the state
// written by a later one.
type Task[A, T any] struct {
	run     func(context.Context, A) (T, error)
	initial A

	mu      sync.Mutex
	gen     uint64
	data    T
	ok      bool
	loading bool
	lastErr error
}

// New wraps run with its initial arguments. No call is issued until Run or
// Refetch.
func New[A, T any](run func(context.Context, A) (T, error), initial A) *Task[A, T] {
	return &Task[A, T]{run: run, initial: initial, loading: true}
}

// Run performs the first activation with the initial arguments.
func (t *Task[A, T]) Run(ctx context.Context) (T, error) {
	return t.Refetch(ctx)
}

// Refetch re-invokes the operation, with new arguments when supplied and the
// initial ones otherwise. It is safe to call concurrently with an in-flight
// previous call; only the most recently started activation may update the
// stored state.
func (t *Task[A, T]) Refetch(ctx context.Context, args ...A) (T, error) {
	arg := t.initial
	if len(args) > 0 {
		arg = args[len(args)-1]
	}

	t.mu.Lock()
	t.gen++
	myGen := t.gen
	t.loading = true
	t.mu.Unlock()

	result, err := t.run(ctx, arg)

	t.mu.Lock()
	if myGen == t.gen {
		t.data = result
		t.ok = err == nil
		t.lastErr = err
		t.loading = false
	}
	t.mu.Unlock()
	return result, err
}

// Data returns the last applied result and whether it came from a successful
// resolution.
func (t *Task[A, T]) Data() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data, t.ok
}

// Loading reports whether the current activation is still in flight. It is
// true before the first activation resolves.
func (t *Task[A, T]) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Err returns the error of the last applied resolution, nil on success.
func (t *Task[A, T]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
