package swrcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Most of them are called with the cache lock held.
type Hooks interface {
	// A new underlying fetch started for key.
	FetchStarted(key string)

	// A caller joined an in-flight fetch instead of starting one.
	FetchJoined(key string)

	// A fetch failed. attempt is 0 for the organic fetch, n for the n-th retry.
	FetchFailed(key string, attempt int, err error)

	// A retry was scheduled after delay.
	RetryScheduled(key string, attempt int, delay time.Duration)

	// A revalidation trigger was ignored.
	// reason ∈ {"deduping_interval", "no_subscribers", "no_fetcher"}
	TriggerSuppressed(key, trigger, reason string)

	// A fetch result was discarded because the key was invalidated or mutated
	// while it was in flight.
	StaleWriteDropped(key string)

	// A subscriber panicked during notification.
	CallbackFailed(key string, err error)

	// The key left the registry. parked is true when its last value went to
	// the retention store.
	EntryEvicted(key string, parked bool)

	// A retention snapshot was rejected on read. All but key_mismatch are deleted.
	// reason ∈ {"corrupt", "key_mismatch", "gen_mismatch", "value_decode"}
	SnapshotRejected(storageKey, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string)                       {}
func (NopHooks) FetchJoined(string)                        {}
func (NopHooks) FetchFailed(string, int, error)            {}
func (NopHooks) RetryScheduled(string, int, time.Duration) {}
func (NopHooks) TriggerSuppressed(string, string, string)  {}
func (NopHooks) StaleWriteDropped(string)                  {}
func (NopHooks) CallbackFailed(string, error)              {}
func (NopHooks) EntryEvicted(string, bool)                 {}
func (NopHooks) SnapshotRejected(string, string)           {}
