package swrcache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type trigger uint8

const (
	triggerMount trigger = iota
	triggerInterval
	triggerFocus
	triggerReconnect
	triggerInvalidate
	triggerRetry
)

func (t trigger) String() string {
	switch t {
	case triggerMount:
		return "mount"
	case triggerInterval:
		return "interval"
	case triggerFocus:
		return "focus"
	case triggerReconnect:
		return "reconnect"
	case triggerInvalidate:
		return "invalidate"
	case triggerRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// guarded triggers are subject to DedupingInterval.
func (t trigger) guarded() bool { return t <= triggerReconnect }

// revalidateLocked asks for a fetch of s on behalf of t. It returns nil when
// the trigger was suppressed.
func (c *cache[V]) revalidateLocked(s *slot[V], t trigger) *Future[V] {
	if len(s.subs) == 0 || s.fetch == nil {
		if s.pending == nil {
			s.state = stateStale
		}
		if t == triggerInvalidate {
			s.invalidated = true
		}
		reason := "no_fetcher"
		if len(s.subs) == 0 {
			reason = "no_subscribers"
		}
		c.suppressLocked(s, t, reason)
		return nil
	}

	if t.guarded() && s.pending == nil && s.policy.DedupingInterval > 0 && !s.lastDone.IsZero() {
		if c.clock.Since(s.lastDone) < s.policy.DedupingInterval {
			c.suppressLocked(s, t, "deduping_interval")
			return nil
		}
	}

	if s.pending == nil {
		s.state = stateStale
	}
	return c.requestFetchLocked(s, s.fetch, t == triggerRetry)
}

func (c *cache[V]) suppressLocked(s *slot[V], t trigger, reason string) {
	c.ctr.suppressed.Add(1)
	c.hooks.TriggerSuppressed(s.key, t.String(), reason)
	c.log.Debug("trigger suppressed", Fields{"key": s.key, "trigger": t.String(), "reason": reason})
}

// mountLocked runs when sub attaches a fetcher.
func (c *cache[V]) mountLocked(s *slot[V], sub *subscription[V]) {
	e := s.entry
	stale := !e.HasData || s.state == stateIdle || s.state == stateStale
	if !stale && sub.opts.MaxAge > 0 && e.Age(c.clock.Now()) > sub.opts.MaxAge {
		stale = true
	}
	t := triggerMount
	if s.invalidated {
		// owed to an earlier Invalidate; not subject to DedupingInterval
		t, stale = triggerInvalidate, true
	}
	if stale && c.revalidateLocked(s, t) != nil {
		return
	}
	// fresh data: only make sure polling runs at the possibly shorter interval
	if s.pending == nil && s.retryTimer == nil {
		c.armRefreshLocked(s)
	}
}

// settleLocked runs after a fetch whose result was written and nothing is
// queued behind it.
func (c *cache[V]) settleLocked(s *slot[V], err error) {
	if len(s.subs) == 0 {
		return
	}
	if err != nil && s.fetch != nil {
		pol := s.policy
		if s.attempt < pol.ErrorRetryCount && pol.RetryPolicy(err) {
			s.attempt++
			d := pol.Backoff.Delay(s.attempt)
			c.ctr.retries.Add(1)
			c.hooks.RetryScheduled(s.key, s.attempt, d)
			c.log.Debug("retry scheduled", Fields{"key": s.key, "attempt": s.attempt, "delay": d})
			c.after(s, &s.retryTimer, d, func() func() {
				c.revalidateLocked(s, triggerRetry)
				return nil
			})
			return
		}
		if pol.ErrorRetryCount > 0 {
			c.log.Warn("retries exhausted", Fields{"key": s.key, "attempts": s.attempt + 1, "err": err})
		}
	}
	c.armRefreshLocked(s)
}

func (c *cache[V]) armRefreshLocked(s *slot[V]) {
	iv := s.refreshIntervalLocked()
	if iv <= 0 || len(s.subs) == 0 {
		stopTimer(&s.refreshTimer)
		return
	}
	c.after(s, &s.refreshTimer, iv, func() func() {
		if c.revalidateLocked(s, triggerInterval) == nil {
			c.armRefreshLocked(s)
		}
		return nil
	})
}

// refreshIntervalLocked is the smallest positive interval among subscribers.
func (s *slot[V]) refreshIntervalLocked() time.Duration {
	var iv time.Duration
	for _, sub := range s.subs {
		r := sub.opts.RefreshInterval
		if r > 0 && (iv == 0 || r < iv) {
			iv = r
		}
	}
	return iv
}

func (s *slot[V]) wantsLocked(t trigger) bool {
	for _, sub := range s.subs {
		if sub.fetch == nil {
			continue
		}
		switch {
		case t == triggerFocus && !sub.opts.DisableFocusRevalidation:
			return true
		case t == triggerReconnect && !sub.opts.DisableReconnectRevalidation:
			return true
		}
	}
	return false
}

// broadcast revalidates every subscribed key that opted into t.
func (c *cache[V]) broadcast(t trigger) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	touched := make([]*slot[V], 0, len(c.slots))
	for _, s := range c.slots {
		if !s.wantsLocked(t) {
			continue
		}
		c.revalidateLocked(s, t)
		touched = append(touched, s)
	}
	c.mu.Unlock()

	for _, s := range touched {
		c.flush(s)
	}
}

type timer struct{ t clockwork.Timer }

func stopTimer(ref **timer) {
	if *ref != nil {
		(*ref).t.Stop()
		*ref = nil
	}
}

// after arms *ref to run fire under c.mu once d has elapsed. Re-arming or
// stopping *ref defuses the old timer even if its callback is already queued.
// fire may return a func to run once the lock is released.
func (c *cache[V]) after(s *slot[V], ref **timer, d time.Duration, fire func() func()) {
	stopTimer(ref)
	tm := &timer{}
	*ref = tm
	tm.t = c.clock.AfterFunc(d, func() {
		go func() {
			c.mu.Lock()
			if *ref != tm || s.evicted || c.closed {
				c.mu.Unlock()
				return
			}
			*ref = nil
			post := fire()
			c.mu.Unlock()

			c.flush(s)
			run(post)
		}()
	})
}
