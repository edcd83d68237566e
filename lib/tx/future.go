package tx

import (
	"context"
	"sync"
)

// Future is the read side of a one-shot asynchronous result.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

// Promise is the write side of a Future. Only the first Complete, Fail or
// Settle call has an effect.
type Promise[T any] struct {
	future *Future[T]
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{future: &Future[T]{done: make(chan struct{})}}
}

// Completed returns a future that already holds v.
func Completed[T any](v T) *Future[T] {
	p := NewPromise[T]()
	p.Complete(v)
	return p.Future()
}

// Failed returns a future that already holds err.
func Failed[T any](err error) *Future[T] {
	p := NewPromise[T]()
	p.Fail(err)
	return p.Future()
}

func (p *Promise[T]) Future() *Future[T] {
	return p.future
}

// Complete settles the promise successfully. It returns false if the promise
// was settled before.
func (p *Promise[T]) Complete(v T) bool {
	return p.future.settle(v, nil)
}

// Fail settles the promise with err. A nil err is treated as success with
// the zero value.
func (p *Promise[T]) Fail(err error) bool {
	var zero T
	return p.future.settle(zero, err)
}

// Settle completes the promise with (v, err). It is shaped to be usable as
// an OnComplete callback through Pipe.
func (p *Promise[T]) Settle(v T, err error) bool {
	return p.future.settle(v, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future is settled or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future is settled. There is no timeout.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Poll returns the result without blocking. ok is false while unsettled.
func (f *Future[T]) Poll() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// OnComplete registers fn to run once the future is settled. Callbacks run on
// the settling goroutine in registration order, or synchronously on the
// caller if the future is already settled.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Pipe forwards the outcome of f into p.
func (f *Future[T]) Pipe(p *Promise[T]) {
	f.OnComplete(func(v T, err error) { p.Settle(v, err) })
}

// Map derives a future by transforming the outcome of f.
func Map[T, R any](f *Future[T], fn func(T, error) (R, error)) *Future[R] {
	p := NewPromise[R]()
	f.OnComplete(func(v T, err error) {
		p.Settle(fn(v, err))
	})
	return p.Future()
}
