package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestRedactsKeysByDefault(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.FetchFailed("portfolio:123", 2, errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "portfolio:123") {
		t.Fatalf("key leaked: %s", out)
	}
	if !strings.Contains(out, "swrcache.fetch_failed") || !strings.Contains(out, "attempt=2") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestIdentityRedact(t *testing.T) {
	h, buf := newTestHooks(Options{Redact: Identity})
	h.EntryEvicted("portfolio:123", true)
	if !strings.Contains(buf.String(), "key=portfolio:123") {
		t.Fatalf("expected verbatim key: %s", buf.String())
	}
}

func TestSamplingSuppressed(t *testing.T) {
	h, buf := newTestHooks(Options{SuppressedEvery: 3})
	for i := 0; i < 9; i++ {
		h.TriggerSuppressed("k", "focus", "deduping_interval")
	}
	if n := strings.Count(buf.String(), "swrcache.trigger_suppressed"); n != 3 {
		t.Fatalf("logged %d lines, want 3", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.FetchStarted("k")
	h.CallbackFailed("k", errors.New("x"))
	h.SnapshotRejected("snap:ns:1", "corrupt")
}
