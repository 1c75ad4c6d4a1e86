package swrcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/swrcache/codec"
	gen "github.com/unkn0wn-root/swrcache/genstore"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

type counters struct {
	fetches          atomic.Uint64
	joined           atomic.Uint64
	suppressed       atomic.Uint64
	retries          atomic.Uint64
	dropped          atomic.Uint64
	callbackFailures atomic.Uint64
	evictions        atomic.Uint64
	hydrated         atomic.Uint64
}

type cache[V any] struct {
	ns      string
	log     Logger
	hooks   Hooks
	clock   clockwork.Clock
	gen     gen.GenStore
	idleTTL time.Duration

	store          pr.Provider
	codec          c.Codec[V]
	retentionTTL   time.Duration
	computeSetCost SetCostFunc
	hydrating      singleflight.Group

	// parent of every slot context; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	slots  map[string]*slot[V]
	subSeq uint64
	closed bool

	ctr counters
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, fmt.Errorf("swrcache: namespace is required")
	}
	if opts.Store != nil && opts.Codec == nil {
		return nil, fmt.Errorf("swrcache: codec is required when a store is set")
	}

	cc := &cache[V]{
		ns:    opts.Namespace,
		store: opts.Store,
		codec: opts.Codec,
		hooks: opts.Hooks,
		clock: opts.Clock,
		slots: make(map[string]*slot[V]),
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	if cc.hooks == nil {
		cc.hooks = NopHooks{}
	}
	if cc.clock == nil {
		cc.clock = clockwork.NewRealClock()
	}
	cc.idleTTL = coalesce(opts.IdleTTL, defaultIdleTTL)
	cc.retentionTTL = coalesce(opts.RetentionTTL, defaultRetentionTTL)

	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		cc.gen = opts.GenStore
	} else {
		// generations must outlive parked snapshots, or a pruned counter could
		// make an old snapshot look current again
		cc.gen = gen.NewLocalGenStore(
			coalesce(opts.GenCleanupInterval, defaultGenCleanup),
			coalesce(opts.GenRetention, 2*cc.retentionTTL),
		)
	}

	cc.ctx, cc.cancel = context.WithCancel(context.Background())
	return cc, nil
}

func (c *cache[V]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, s := range c.slots {
		s.stopTimersLocked()
		stopTimer(&s.evictTimer)
	}
	c.slots = make(map[string]*slot[V])
	c.mu.Unlock()

	// aborts every in-flight fetch; their completions see c.closed
	c.cancel()

	var errs []error
	if c.gen != nil {
		if err := c.gen.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close gen store: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *cache[V]) Get(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return Entry[V]{}, false
	}
	return s.entry, true
}

func (c *cache[V]) Subscribe(key string, fn Listener[V]) (*Resource[V], error) {
	return c.subscribe(key, nil, ResourceOptions{}, []Listener[V]{fn})
}

func (c *cache[V]) Use(key string, fetch FetchFunc[V], opts ResourceOptions, fns ...Listener[V]) (*Resource[V], error) {
	if fetch == nil {
		return nil, ErrNoFetcher
	}
	return c.subscribe(key, fetch, opts, fns)
}

func (c *cache[V]) Fetch(key string, fetch FetchFunc[V]) *Future[V] {
	if err := ValidateKey(key); err != nil {
		return failedFuture[V](err)
	}
	if fetch == nil {
		return failedFuture[V](ErrNoFetcher)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedFuture[V](ErrClosed)
	}
	s, _ := c.slotLocked(key)
	fut := c.requestFetchLocked(s, fetch, false)
	post := c.releaseLocked(s)
	c.mu.Unlock()

	c.flush(s)
	run(post)
	return fut
}

func (c *cache[V]) Invalidate(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	_, bumpErr := c.bumpGen(key)
	s, live := c.slots[key]
	if live {
		c.revalidateLocked(s, triggerInvalidate)
	}
	c.mu.Unlock()

	if live {
		c.flush(s)
	} else {
		c.dropParked(key)
	}
	if bumpErr != nil {
		return fmt.Errorf("swrcache: invalidate %q: %w", key, bumpErr)
	}
	return nil
}

func (c *cache[V]) Mutate(key string, value V, revalidate bool) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// fetches already in flight must not overwrite the local value
	_, bumpErr := c.bumpGen(key)
	s, _ := c.slotLocked(key)
	s.entry.Data = value
	s.entry.HasData = true
	s.entry.Err = nil
	s.entry.FetchedAt = c.clock.Now()
	s.state = stateFresh
	s.enqueueLocked()
	if revalidate {
		c.revalidateLocked(s, triggerInvalidate)
	} else {
		// the local value supersedes any refetch still owed
		s.invalidated = false
	}
	post := c.releaseLocked(s)
	c.mu.Unlock()

	c.flush(s)
	run(post)
	if bumpErr != nil {
		return fmt.Errorf("swrcache: mutate %q: %w", key, bumpErr)
	}
	return nil
}

func (c *cache[V]) FocusRegained() { c.broadcast(triggerFocus) }

func (c *cache[V]) NetworkReconnected() { c.broadcast(triggerReconnect) }

func (c *cache[V]) Stats() Stats {
	return Stats{
		Fetches:            c.ctr.fetches.Load(),
		Joined:             c.ctr.joined.Load(),
		Suppressed:         c.ctr.suppressed.Load(),
		Retries:            c.ctr.retries.Load(),
		StaleWritesDropped: c.ctr.dropped.Load(),
		CallbackFailures:   c.ctr.callbackFailures.Load(),
		Evictions:          c.ctr.evictions.Load(),
		Hydrated:           c.ctr.hydrated.Load(),
	}
}

func (c *cache[V]) snapshotGen(key string) uint64 {
	g, err := c.gen.Snapshot(context.Background(), key)
	if err != nil {
		// Conservative: 0 keeps writes flowing; a later bump still wins
		c.log.Warn("gen snapshot error", Fields{"key": key, "err": err})
		return 0
	}
	return g
}

func (c *cache[V]) bumpGen(key string) (uint64, error) {
	g, err := c.gen.Bump(context.Background(), key)
	if err != nil {
		c.log.Error("gen bump error", Fields{"key": key, "err": err})
		return 0, err
	}
	return g, nil
}

func run(post func()) {
	if post != nil {
		post()
	}
}
