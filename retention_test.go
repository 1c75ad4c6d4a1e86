package swrcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	c "github.com/unkn0wn-root/swrcache/codec"
)

func newRetentionCache(t *testing.T) (*cache[portfolio], *memProvider, *hookRec) {
	t.Helper()
	store := newMemProvider()
	hooks := &hookRec{}
	cc, _ := newTestCache(t, func(o *Options[portfolio]) {
		o.IdleTTL = -1 // evict as soon as the last subscriber leaves
		o.Store = store
		o.Codec = c.JSON[portfolio]{}
		o.Hooks = hooks
	})
	return cc, store, hooks
}

func parkOne(t *testing.T, cc *cache[portfolio], key string) {
	t.Helper()
	s := valueStub()
	res, err := cc.Use(key, s.fetch, ResourceOptions{})
	require.NoError(t, err)
	settled(t, cc, s, key, 1)
	res.Close()

	_, live := cc.Get(key)
	require.False(t, live, "IdleTTL<0 evicts at once")
}

func TestEvictedEntryIsHydrated(t *testing.T) {
	cc, store, hooks := newRetentionCache(t)
	parkOne(t, cc, "portfolio:123")
	require.True(t, store.has(cc.storageKey("portfolio:123")))
	require.True(t, hooks.has("evicted:portfolio:123"))

	s := valueStub()
	release := s.hold(1)
	res, err := cc.Use("portfolio:123", s.fetch, ResourceOptions{})
	require.NoError(t, err)
	defer res.Close()

	e := res.Snapshot()
	require.True(t, e.HasData, "parked value renders at once")
	require.Equal(t, 1.0, e.Data.TotalValue)
	require.True(t, e.Validating, "hydrated entries are stale and revalidate")
	require.False(t, e.IsLoading())
	require.EqualValues(t, 1, cc.Stats().Hydrated)
	require.False(t, store.has(cc.storageKey("portfolio:123")), "snapshot is consumed")

	close(release)
	settled(t, cc, s, "portfolio:123", 1)
}

func TestInvalidateDropsParkedSnapshot(t *testing.T) {
	cc, store, _ := newRetentionCache(t)
	parkOne(t, cc, "portfolio:1")

	require.NoError(t, cc.Invalidate("portfolio:1"))
	require.False(t, store.has(cc.storageKey("portfolio:1")))
}

func TestSnapshotFromOlderGenerationIsRejected(t *testing.T) {
	cc, store, hooks := newRetentionCache(t)
	parkOne(t, cc, "portfolio:1")

	// a bump the retention layer did not see
	_, err := cc.gen.Bump(context.Background(), "portfolio:1")
	require.NoError(t, err)

	res, err := cc.Subscribe("portfolio:1", nil)
	require.NoError(t, err)
	defer res.Close()

	require.False(t, res.Snapshot().HasData)
	require.True(t, hooks.has("rejected:gen_mismatch"))
	require.False(t, store.has(cc.storageKey("portfolio:1")), "self-heal deletes the snapshot")
	require.Zero(t, cc.Stats().Hydrated)
}

func TestCorruptSnapshotIsDeleted(t *testing.T) {
	cc, store, hooks := newRetentionCache(t)
	sk := cc.storageKey("portfolio:1")
	_, _ = store.Set(context.Background(), sk, []byte("not a frame"), 1, time.Minute)

	res, err := cc.Subscribe("portfolio:1", nil)
	require.NoError(t, err)
	defer res.Close()

	require.False(t, res.Snapshot().HasData)
	require.True(t, hooks.has("rejected:corrupt"))
	require.False(t, store.has(sk))
}

func TestStorageKeyIsNamespaced(t *testing.T) {
	cc, _, _ := newRetentionCache(t)
	require.Regexp(t, `^snap:portfolio:[0-9a-f]{16}$`, cc.storageKey("portfolio:1"))
}
