package engine

import (
	"context"
	"sync"
)

// Future is a single-shot result. The first resolve wins; later ones are
// ignored.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve sets the result and reports whether this call was the first.
func (f *Future[T]) resolve(v T, err error) bool {
	first := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		first = true
	})
	return first
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the result without blocking. ok is false while pending.
func (f *Future[T]) Result() (v T, ok bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return v, false, nil
	}
}
