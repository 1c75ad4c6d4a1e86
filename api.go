package swrcache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	c "github.com/unkn0wn-root/swrcache/codec"
	gen "github.com/unkn0wn-root/swrcache/genstore"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

// FetchFunc loads the value behind key. ctx is cancelled when the key is
// evicted or the cache is closed; timeouts are the fetcher's business.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// Listener receives the full entry snapshot after every transition of a key.
type Listener[V any] func(Entry[V])

// SetCostFunc reports the cost of a retention snapshot for cost-aware providers.
type SetCostFunc func(storageKey string, raw []byte) int64

// Cache is a stale-while-revalidate cache for values of type V.
// All methods are safe for concurrent use.
type Cache[V any] interface {
	// Close disposes the cache: timers stop, in-flight fetches are cancelled
	// and the stores are closed. Further calls fail with ErrClosed.
	Close(context.Context) error

	// Get reads the current entry without side effects.
	Get(key string) (Entry[V], bool)

	// Subscribe registers fn for key without attaching a fetcher.
	// The current entry is available from the returned handle immediately.
	Subscribe(key string, fn Listener[V]) (*Resource[V], error)

	// Use subscribes, attaches fetch and revalidates when the entry is missing
	// or stale. It is the hook a view calls on mount; Close is the unmount.
	Use(key string, fetch FetchFunc[V], opts ResourceOptions, fns ...Listener[V]) (*Resource[V], error)

	// Fetch starts fetch for key or joins the one already in flight.
	// It is also the way to pre-seed a key nobody subscribes to yet: the
	// entry is created for the result and evicted after IdleTTL unless a
	// subscriber arrives first.
	Fetch(key string, fetch FetchFunc[V]) *Future[V]

	// Invalidate marks key stale and, when it has subscribers, refetches it.
	// Otherwise the next Use refetches it regardless of DedupingInterval.
	// Results of fetches started before the call are discarded.
	Invalidate(key string) error

	// Mutate replaces the cached value locally (optimistic update).
	// With revalidate the key is refetched afterwards.
	Mutate(key string, value V, revalidate bool) error

	// FocusRegained and NetworkReconnected are external revalidation events.
	FocusRegained()
	NetworkReconnected()

	Stats() Stats
}

// Options tune the cache. Only Namespace is required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace, e.g. "portfolio", "market"

	Logger Logger          // if nil, NopLogger is used
	Hooks  Hooks           // if nil, NopHooks is used
	Clock  clockwork.Clock // nil => real clock

	IdleTTL  time.Duration // keep an unsubscribed entry this long; 0 => 5m, <0 => evict at once
	GenStore gen.GenStore  // nil => LocalGenStore (in-process)

	// Retention of evicted entries. Disabled unless Store is set.
	Store          pr.Provider
	Codec          c.Codec[V]    // required with Store
	RetentionTTL   time.Duration // 0 => 30m
	ComputeSetCost SetCostFunc   // default 1

	GenCleanupInterval time.Duration // 0 => 10m
	GenRetention       time.Duration // 0 => 2 * RetentionTTL
}

// ResourceOptions are supplied per Use call. The zero value matches the usual
// SWR defaults: revalidate on focus and reconnect, retry errors, no polling.
type ResourceOptions struct {
	RefreshInterval  time.Duration // poll while subscribed; 0 => disabled
	DedupingInterval time.Duration // ignore organic triggers this soon after a fetch; 0 => 2s, <0 => off

	// MaxAge > 0 makes a mount refetch data older than MaxAge even when it is
	// still marked fresh.
	MaxAge time.Duration

	DisableFocusRevalidation     bool
	DisableReconnectRevalidation bool
	DisableErrorRetry            bool

	ErrorRetryCount    int           // 0 => 3, <0 => no retries
	ErrorRetryInterval time.Duration // base for the default backoff; 0 => 5s
	Backoff            Backoff       // nil => ExponentialBackoff{Base: ErrorRetryInterval, Jitter: true}
	RetryPolicy        RetryPolicy   // nil => DefaultRetryPolicy
}

func (o ResourceOptions) withDefaults() ResourceOptions {
	o.DedupingInterval = coalesce(o.DedupingInterval, defaultDedupingInterval)
	if o.DedupingInterval < 0 {
		o.DedupingInterval = 0
	}
	o.ErrorRetryCount = coalesce(o.ErrorRetryCount, defaultErrorRetryCount)
	if o.ErrorRetryCount < 0 || o.DisableErrorRetry {
		o.ErrorRetryCount = 0
	}
	o.ErrorRetryInterval = coalesce(o.ErrorRetryInterval, defaultErrorRetryInterval)
	if o.Backoff == nil {
		o.Backoff = ExponentialBackoff{Base: o.ErrorRetryInterval, Jitter: true}
	}
	if o.RetryPolicy == nil {
		o.RetryPolicy = DefaultRetryPolicy
	}
	return o
}

// Stats are monotonic counters since New.
type Stats struct {
	Fetches            uint64 // underlying fetches started
	Joined             uint64 // callers that joined an in-flight fetch
	Suppressed         uint64 // triggers ignored (deduping, no subscribers)
	Retries            uint64
	StaleWritesDropped uint64
	CallbackFailures   uint64
	Evictions          uint64
	Hydrated           uint64 // entries restored from the retention store
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
