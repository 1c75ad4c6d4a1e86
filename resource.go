package swrcache

import (
	"context"
	"sync"
)

// Resource is one subscription to a key, returned by Use and Subscribe.
// Close it when the consumer goes away; the key is evicted after the last
// subscription closes and IdleTTL elapses.
type Resource[V any] struct {
	c    *cache[V]
	s    *slot[V]
	sub  *subscription[V]
	once sync.Once
}

func (r *Resource[V]) Key() string { return r.s.key }

// Snapshot is the current entry. Right after Use it is what the consumer
// renders first.
func (r *Resource[V]) Snapshot() Entry[V] {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.s.entry
}

func (r *Resource[V]) Data() (V, bool) {
	e := r.Snapshot()
	return e.Data, e.HasData
}

func (r *Resource[V]) Err() error { return r.Snapshot().Err }

func (r *Resource[V]) IsLoading() bool { return r.Snapshot().IsLoading() }

func (r *Resource[V]) IsValidating() bool { return r.Snapshot().Validating }

// Refresh invalidates the key and waits for a fetch that started after the
// call. Unlike organic revalidation the fetch error is returned to the caller.
func (r *Resource[V]) Refresh(ctx context.Context) error {
	fut, err := r.c.refresh(r)
	if err != nil {
		return err
	}
	_, err = fut.Wait(ctx)
	return err
}

// Mutate is Cache.Mutate for this resource's key.
func (r *Resource[V]) Mutate(value V, revalidate bool) error {
	return r.c.Mutate(r.s.key, value, revalidate)
}

// Close unsubscribes. It is idempotent.
func (r *Resource[V]) Close() {
	r.once.Do(func() { r.c.unsubscribe(r.s, r.sub) })
}

func (c *cache[V]) refresh(r *Resource[V]) (*Future[V], error) {
	c.mu.Lock()
	s := r.s
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if s.evicted {
		c.mu.Unlock()
		return nil, ErrEvicted
	}
	if s.fetch == nil {
		c.mu.Unlock()
		return nil, ErrNoFetcher
	}
	_, bumpErr := c.bumpGen(s.key)
	if s.pending == nil {
		s.state = stateStale
	}
	fut := c.requestFetchLocked(s, s.fetch, false)
	c.mu.Unlock()

	c.flush(s)
	if bumpErr != nil {
		c.log.Warn("refresh without invalidation", Fields{"key": s.key, "err": bumpErr})
	}
	return fut, nil
}
