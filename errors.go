package swrcache

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidKey matches every *InvalidKeyError.
	ErrInvalidKey = errors.New("swrcache: invalid key")
	ErrClosed     = errors.New("swrcache: cache closed")
	ErrNoFetcher  = errors.New("swrcache: no fetcher registered for key")
	// ErrEvicted resolves futures queued behind a fetch whose key was evicted.
	ErrEvicted = errors.New("swrcache: key evicted")
)

// InvalidKeyError is a programmer error. It is returned synchronously and never retried.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("swrcache: invalid key %q: %s", e.Key, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool { return target == ErrInvalidKey }

// TransportError is a network-level failure (dial, TLS, reset, timeout).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is a non-2xx response from the upstream.
type ResponseError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, msg)
}

// Temporary reports whether retrying could help: 5xx, 408 and 429.
// Any other 4xx is a permanent client error.
func (e *ResponseError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// CallbackError reports a subscriber that panicked while being notified.
// The panic is contained; other subscribers still receive the snapshot.
type CallbackError struct {
	Key   string
	Value any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("swrcache: subscriber of %q panicked: %v", e.Key, e.Value)
}

func (e *CallbackError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// PanicError is what a fetch that panicked resolves to.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("swrcache: fetch of %q panicked: %v", e.Key, e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
