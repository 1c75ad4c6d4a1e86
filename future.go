package swrcache

import "context"

// Future is the pending result of one underlying fetch. Every caller that
// joined the fetch holds the same *Future and observes the same result.
type Future[V any] struct {
	done chan struct{}
	val  V
	err  error
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func failedFuture[V any](err error) *Future[V] {
	f := newFuture[V]()
	var zero V
	f.resolve(zero, err)
	return f
}

// Done is closed once the result is available.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Wait blocks until the fetch completes or ctx ends. A ctx error only abandons
// the wait; the fetch itself keeps running.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while pending.
func (f *Future[V]) Result() (v V, ok bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return v, false, nil
	}
}

// resolve must be called exactly once.
func (f *Future[V]) resolve(v V, err error) {
	f.val, f.err = v, err
	close(f.done)
}
