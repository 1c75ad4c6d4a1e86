package swrcache

import "time"

const (
	defaultIdleTTL            = 5 * time.Minute
	defaultRetentionTTL       = 30 * time.Minute
	defaultGenCleanup         = 10 * time.Minute
	defaultDedupingInterval   = 2 * time.Second
	defaultErrorRetryCount    = 3
	defaultErrorRetryInterval = 5 * time.Second
	defaultMaxRetryDelay      = 32 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
