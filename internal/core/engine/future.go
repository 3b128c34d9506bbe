package engine

import (
	"context"
	"fmt"
	"sync"
)

// Future is the eventual outcome of a submitted action.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the outcome is available or ctx ends. A ctx error does
// not withdraw the submitted action; it still runs when admitted.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits fn and waits for its typed result.
func Do[T any](ctx context.Context, s *Scheduler, method string, priority int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	future := s.Submit(method, priority, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	value, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", method, value)
	}
	return typed, nil
}
