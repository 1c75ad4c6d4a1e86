// Package asynchook moves hook delivery off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SuppressedEvery: 100, // sample logs: ~every 100th suppressed trigger
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := swrcache.New[Portfolio](swrcache.Options[Portfolio]{
//	    Namespace: "portfolio",
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
//
// Events are dropped while the queue is full.
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swrcache"
)

type Hooks struct {
	inner   swrcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards send against close
	closed  bool
	dropped atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(inner swrcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k string) { h.try(func() { h.inner.FetchStarted(k) }) }
func (h *Hooks) FetchJoined(k string)  { h.try(func() { h.inner.FetchJoined(k) }) }
func (h *Hooks) FetchFailed(k string, attempt int, err error) {
	h.try(func() { h.inner.FetchFailed(k, attempt, err) })
}
func (h *Hooks) RetryScheduled(k string, attempt int, d time.Duration) {
	h.try(func() { h.inner.RetryScheduled(k, attempt, d) })
}
func (h *Hooks) TriggerSuppressed(k, trigger, reason string) {
	h.try(func() { h.inner.TriggerSuppressed(k, trigger, reason) })
}
func (h *Hooks) StaleWriteDropped(k string)         { h.try(func() { h.inner.StaleWriteDropped(k) }) }
func (h *Hooks) CallbackFailed(k string, err error) { h.try(func() { h.inner.CallbackFailed(k, err) }) }
func (h *Hooks) EntryEvicted(k string, parked bool) { h.try(func() { h.inner.EntryEvicted(k, parked) }) }
func (h *Hooks) SnapshotRejected(k, reason string)  { h.try(func() { h.inner.SnapshotRejected(k, reason) }) }
