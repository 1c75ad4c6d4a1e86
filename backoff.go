package swrcache

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns how long to wait before retry number attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration before every retry.
type FixedBackoff time.Duration

func (b FixedBackoff) Delay(int) time.Duration { return time.Duration(b) }

const maxJitterDelay = time.Duration(math.MaxInt64 / 3 * 2)

// ExponentialBackoff doubles Base per attempt up to Max.
// With Jitter the delay is spread over [d/2, 3d/2) so clients that failed
// together do not retry together.
type ExponentialBackoff struct {
	Base   time.Duration // 0 => 5s
	Max    time.Duration // 0 => 32s
	Jitter bool
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	base := coalesce(b.Base, defaultErrorRetryInterval)
	ceil := coalesce(b.Max, defaultMaxRetryDelay)
	d := min(base, ceil)
	for i := 1; i < attempt && d < ceil; i++ {
		if d > ceil/2 {
			d = ceil
			break
		}
		d *= 2
	}
	if b.Jitter && d > 0 {
		// d/2 + [0, d) must stay below MaxInt64
		d = min(d, maxJitterDelay)
		d = d/2 + rand.N(d)
	}
	return d
}

// RetryPolicy decides whether a failed fetch is worth retrying.
type RetryPolicy func(err error) bool

// DefaultRetryPolicy retries transport failures, 5xx, 408, 429 and unknown
// errors. Invalid keys, permanent 4xx responses and cancellations are final.
func DefaultRetryPolicy(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrClosed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	return true
}
