package swrcache

import "time"

// Entry is the state of one key as seen by subscribers. It is always handed
// out by value; mutating a snapshot has no effect on the cache.
//
// Before the first fetch HasData is false and Err is nil. A failed
// revalidation sets Err and keeps the last good Data.
type Entry[V any] struct {
	Data       V
	HasData    bool
	Err        error
	FetchedAt  time.Time // last successful fetch or Mutate; zero if never
	Validating bool      // a fetch for this key is in flight
}

// IsLoading reports a first load: in flight with nothing to show yet.
func (e Entry[V]) IsLoading() bool { return e.Validating && !e.HasData }

// Age is how old Data is at now. Zero when there is no data.
func (e Entry[V]) Age(now time.Time) time.Duration {
	if !e.HasData || e.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(e.FetchedAt)
}

type keyState uint8

const (
	stateIdle keyState = iota
	stateFetching
	stateFresh
	stateStale
)

func (s keyState) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateFresh:
		return "fresh"
	case stateStale:
		return "stale"
	default:
		return "idle"
	}
}
