package swrcache

import (
	"context"
)

// call is one underlying fetch. next is the single follow-up queued by callers
// that need data newer than gen; it starts when this call completes.
type call[V any] struct {
	fut    *Future[V]
	fetch  FetchFunc[V]
	gen    uint64
	retry  bool
	cancel context.CancelFunc
	next   *call[V]
}

// requestFetchLocked returns the future of the fetch that will produce the
// next value of s at its current generation, starting one only when nothing
// usable is in flight.
func (c *cache[V]) requestFetchLocked(s *slot[V], fetch FetchFunc[V], retry bool) *Future[V] {
	g := c.snapshotGen(s.key)
	if p := s.pending; p != nil {
		if p.gen == g {
			c.joinedLocked(s)
			return p.fut
		}
		// the running fetch predates an invalidation; queue behind it
		if p.next != nil {
			c.joinedLocked(s)
			return p.next.fut
		}
		p.next = &call[V]{fut: newFuture[V](), fetch: fetch}
		return p.next.fut
	}

	p := &call[V]{fut: newFuture[V](), fetch: fetch, retry: retry}
	c.startLocked(s, p)
	s.enqueueLocked()
	return p.fut
}

func (c *cache[V]) joinedLocked(s *slot[V]) {
	c.ctr.joined.Add(1)
	c.hooks.FetchJoined(s.key)
}

// startLocked launches p. The caller enqueues the resulting snapshot.
func (c *cache[V]) startLocked(s *slot[V], p *call[V]) {
	ctx, cancel := context.WithCancel(s.ctx)
	p.gen = c.snapshotGen(s.key)
	p.cancel = cancel
	if !p.retry {
		s.attempt = 0
	}
	s.pending = p
	s.invalidated = false
	s.state = stateFetching
	s.entry.Validating = true
	s.stopTimersLocked()

	c.ctr.fetches.Add(1)
	c.hooks.FetchStarted(s.key)
	c.log.Debug("fetch started", Fields{"key": s.key, "gen": p.gen, "attempt": s.attempt})

	go c.run(ctx, s, p)
}

func (c *cache[V]) run(ctx context.Context, s *slot[V], p *call[V]) {
	v, err := c.invoke(ctx, s.key, p.fetch)
	c.complete(s, p, v, err)
}

func (c *cache[V]) invoke(ctx context.Context, key string, fetch FetchFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			v, err = zero, &PanicError{Key: key, Value: r}
		}
	}()
	return fetch(ctx, key)
}

func (c *cache[V]) complete(s *slot[V], p *call[V], v V, err error) {
	c.mu.Lock()
	p.cancel()
	if s.pending == p {
		s.pending = nil
	}

	if s.evicted || c.closed {
		next := p.next
		c.mu.Unlock()
		p.fut.resolve(v, err)
		if next != nil {
			var zero V
			reason := ErrEvicted
			if c.closed {
				reason = ErrClosed
			}
			next.fut.resolve(zero, reason)
		}
		return
	}

	now := c.clock.Now()
	s.lastDone = now
	dropped := c.snapshotGen(s.key) != p.gen
	switch {
	case dropped:
		c.ctr.dropped.Add(1)
		c.hooks.StaleWriteDropped(s.key)
		c.log.Debug("stale write dropped", Fields{"key": s.key, "gen": p.gen})
		if s.state == stateFetching {
			s.state = stateStale
		}
	case err != nil:
		// prior data survives a failed revalidation
		s.entry.Err = err
		s.state = stateStale
		c.hooks.FetchFailed(s.key, s.attempt, err)
		c.log.Debug("fetch failed", Fields{"key": s.key, "attempt": s.attempt, "err": err})
	default:
		s.entry.Data = v
		s.entry.HasData = true
		s.entry.Err = nil
		s.entry.FetchedAt = now
		s.state = stateFresh
		s.attempt = 0
	}

	var post func()
	if p.next != nil {
		// Validating stays set across the hand-off
		c.startLocked(s, p.next)
	} else {
		s.entry.Validating = false
		if !dropped {
			c.settleLocked(s, err)
		} else {
			c.armRefreshLocked(s)
		}
		post = c.releaseLocked(s)
	}
	s.enqueueLocked()
	c.mu.Unlock()

	p.fut.resolve(v, err)
	c.flush(s)
	run(post)
}
