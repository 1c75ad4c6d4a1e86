package swrcache

import (
	"context"
	"sort"
	"time"
)

// slot is the registry record of one key. Every field is guarded by cache.mu.
type slot[V any] struct {
	key   string
	entry Entry[V]
	state keyState
	subs  map[uint64]*subscription[V]

	// fetcher and policy of the most recently attached subscriber still
	// subscribed; fetchSub is its id
	fetch    FetchFunc[V]
	policy   ResourceOptions
	fetchSub uint64

	// an invalidation found nobody to refetch for; the next mount must fetch
	invalidated bool

	pending  *call[V]
	lastDone time.Time // completion of the last fetch; anchors DedupingInterval
	attempt  int       // retries scheduled since the last success or organic fetch

	refreshTimer *timer
	retryTimer   *timer
	evictTimer   *timer

	// notification queue; seq numbers every enqueued snapshot
	seq      uint64
	queue    []notice[V]
	draining bool

	ctx     context.Context // cancelled on eviction
	cancel  context.CancelFunc
	evicted bool
}

type subscription[V any] struct {
	id    uint64
	fns   []Listener[V]
	since uint64 // notices up to this seq predate the subscription

	fetch FetchFunc[V] // nil for plain listeners
	opts  ResourceOptions // defaults applied; zero unless fetch is set
}

type notice[V any] struct {
	seq   uint64
	to    uint64 // subscription id; 0 => everyone
	entry Entry[V]
}

func (c *cache[V]) slotLocked(key string) (*slot[V], bool) {
	if s, ok := c.slots[key]; ok {
		return s, false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	s := &slot[V]{
		key:    key,
		subs:   make(map[uint64]*subscription[V]),
		ctx:    ctx,
		cancel: cancel,
	}
	c.slots[key] = s
	return s, true
}

func (c *cache[V]) subscribe(key string, fetch FetchFunc[V], opts ResourceOptions, fns []Listener[V]) (*Resource[V], error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	// the store round trip stays outside the lock
	var (
		parked    Entry[V]
		hasParked bool
	)
	if c.store != nil {
		c.mu.Lock()
		_, live := c.slots[key]
		c.mu.Unlock()
		if !live {
			parked, hasParked = c.hydrate(key)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s, created := c.slotLocked(key)
	if created && hasParked {
		s.entry = parked
		s.state = stateStale
		c.ctr.hydrated.Add(1)
	}
	stopTimer(&s.evictTimer)

	c.subSeq++
	sub := &subscription[V]{id: c.subSeq, since: s.seq}
	for _, fn := range fns {
		if fn != nil {
			sub.fns = append(sub.fns, fn)
		}
	}
	s.subs[sub.id] = sub

	// the cached snapshot goes to the newcomer first, ahead of anything the
	// mount itself triggers
	if len(sub.fns) > 0 && (s.entry.HasData || s.entry.Err != nil) {
		s.seq++
		s.queue = append(s.queue, notice[V]{seq: s.seq, to: sub.id, entry: s.entry})
	}

	if fetch != nil {
		sub.fetch = fetch
		sub.opts = opts.withDefaults()
		s.fetch = fetch
		s.policy = sub.opts
		s.fetchSub = sub.id
		c.mountLocked(s, sub)
	}
	c.mu.Unlock()

	c.flush(s)
	return &Resource[V]{c: c, s: s, sub: sub}, nil
}

func (c *cache[V]) unsubscribe(s *slot[V], sub *subscription[V]) {
	c.mu.Lock()
	if _, ok := s.subs[sub.id]; !ok || s.evicted {
		c.mu.Unlock()
		return
	}
	delete(s.subs, sub.id)
	if sub.id == s.fetchSub {
		s.electFetcherLocked()
	}
	var post func()
	switch {
	case len(s.subs) == 0:
		s.stopTimersLocked()
		post = c.releaseLocked(s)
	case s.refreshTimer != nil:
		// the leaver may have set the shortest interval
		c.armRefreshLocked(s)
	}
	c.mu.Unlock()
	run(post)
}

// electFetcherLocked hands the slot to the newest remaining subscriber with a
// fetcher. With none left, triggers are suppressed until one attaches.
func (s *slot[V]) electFetcherLocked() {
	var next *subscription[V]
	for _, sub := range s.subs {
		if sub.fetch != nil && (next == nil || sub.id > next.id) {
			next = sub
		}
	}
	if next == nil {
		s.fetch, s.fetchSub = nil, 0
		s.policy = ResourceOptions{}.withDefaults()
		stopTimer(&s.retryTimer)
		return
	}
	s.fetch, s.policy, s.fetchSub = next.fetch, next.opts, next.id
}

// releaseLocked arms idle eviction for a slot nobody subscribes to. The
// returned func parks the evicted entry and must run after c.mu is released.
func (c *cache[V]) releaseLocked(s *slot[V]) func() {
	if len(s.subs) > 0 || s.evicted || c.closed {
		return nil
	}
	if c.idleTTL < 0 {
		// let a running fetch land; its completion calls back here
		if s.pending != nil {
			return nil
		}
		return c.evictLocked(s)
	}
	if s.evictTimer == nil {
		c.after(s, &s.evictTimer, c.idleTTL, func() func() {
			if len(s.subs) > 0 {
				return nil
			}
			return c.evictLocked(s)
		})
	}
	return nil
}

func (c *cache[V]) evictLocked(s *slot[V]) func() {
	delete(c.slots, s.key)
	s.evicted = true
	s.cancel()
	s.stopTimersLocked()
	stopTimer(&s.evictTimer)
	s.queue = nil
	c.ctr.evictions.Add(1)
	c.log.Debug("entry evicted", Fields{"key": s.key})

	e := s.entry
	return func() {
		parked := false
		if c.store != nil && e.HasData {
			parked = c.park(s.key, e)
		}
		c.hooks.EntryEvicted(s.key, parked)
	}
}

func (s *slot[V]) stopTimersLocked() {
	stopTimer(&s.refreshTimer)
	stopTimer(&s.retryTimer)
}

// enqueueLocked records one snapshot of the entry for every current subscriber.
func (s *slot[V]) enqueueLocked() {
	s.seq++
	if len(s.subs) == 0 {
		return
	}
	s.queue = append(s.queue, notice[V]{seq: s.seq, entry: s.entry})
}

func (s *slot[V]) recipientsLocked(n notice[V]) []*subscription[V] {
	out := make([]*subscription[V], 0, len(s.subs))
	for _, sub := range s.subs {
		if len(sub.fns) == 0 || sub.since >= n.seq {
			continue
		}
		if n.to != 0 && n.to != sub.id {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// flush delivers queued notices outside the lock. Only one goroutine drains a
// slot at a time, which keeps per-key delivery in transition order; a caller
// that finds a drain running leaves its notices to that drainer.
func (c *cache[V]) flush(s *slot[V]) {
	c.mu.Lock()
	if s.draining {
		c.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		n := s.queue[0]
		s.queue[0] = notice[V]{}
		s.queue = s.queue[1:]
		subs := s.recipientsLocked(n)
		c.mu.Unlock()

		for _, sub := range subs {
			for _, fn := range sub.fns {
				c.deliver(s.key, fn, n.entry)
			}
		}

		c.mu.Lock()
	}
	s.queue = nil
	s.draining = false
	c.mu.Unlock()
}

func (c *cache[V]) deliver(key string, fn Listener[V], e Entry[V]) {
	defer func() {
		if r := recover(); r != nil {
			err := &CallbackError{Key: key, Value: r}
			c.ctr.callbackFailures.Add(1)
			c.log.Error("subscriber panicked", Fields{"key": key, "err": err})
			c.hooks.CallbackFailed(key, err)
		}
	}()
	fn(e)
}
