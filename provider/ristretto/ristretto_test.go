package ristretto

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	ok, err := p.Set(ctx, "snap:ns:1", []byte("frame"), 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("set ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, "snap:ns:1")
	if err != nil || !hit {
		t.Fatalf("get hit=%v err=%v", hit, err)
	}
	if !bytes.Equal(got, []byte("frame")) {
		t.Fatalf("got %q", got)
	}

	if err := p.Del(ctx, "snap:ns:1"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := p.Get(ctx, "snap:ns:1"); hit {
		t.Fatal("expected miss after Del")
	}
}

func TestMissIsNotAnError(t *testing.T) {
	p := newTestProvider(t)
	b, hit, err := p.Get(context.Background(), "nope")
	if err != nil || hit || b != nil {
		t.Fatalf("b=%v hit=%v err=%v", b, hit, err)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for zero config")
	}
}
