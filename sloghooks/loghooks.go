// Package sloghooks reports cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swrcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery      uint64 // FetchStarted and FetchJoined
	SuppressedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	// Keys may carry account ids; identity keeps them readable.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr      atomic.Uint64
	suppressedCtr atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// Identity is a Redact that logs keys verbatim.
func Identity(k string) string { return k }

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key string) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("swrcache.fetch_started", "key", h.redact(key))
}

func (h *Hooks) FetchJoined(key string) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("swrcache.fetch_joined", "key", h.redact(key))
}

func (h *Hooks) FetchFailed(key string, attempt int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.fetch_failed",
		"key", h.redact(key),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) RetryScheduled(key string, attempt int, delay time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("swrcache.retry_scheduled",
		"key", h.redact(key),
		"attempt", attempt,
		"delay", delay)
}

func (h *Hooks) TriggerSuppressed(key, trigger, reason string) {
	if h.l == nil || !sample(h.opts.SuppressedEvery, &h.suppressedCtr) {
		return
	}
	h.l.Debug("swrcache.trigger_suppressed",
		"key", h.redact(key),
		"trigger", trigger,
		"reason", reason)
}

func (h *Hooks) StaleWriteDropped(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.stale_write_dropped", "key", h.redact(key))
}

func (h *Hooks) CallbackFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("swrcache.callback_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) EntryEvicted(key string, parked bool) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.entry_evicted",
		"key", h.redact(key),
		"parked", parked)
}

func (h *Hooks) SnapshotRejected(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.snapshot_rejected",
		"key", h.redact(storageKey),
		"reason", reason)
}
