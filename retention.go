package swrcache

import (
	"context"

	"github.com/unkn0wn-root/swrcache/internal/util"
	"github.com/unkn0wn-root/swrcache/internal/wire"
)

// Retention parks the last good value of an evicted key in Store so the next
// subscriber renders it at once (as stale) instead of a loading state.
// Snapshots carry the generation they were parked at; an Invalidate or Mutate
// in between makes them unusable.

func (c *cache[V]) storageKey(key string) string {
	return util.StorageKey("snap:"+c.ns, key)
}

func (c *cache[V]) park(key string, e Entry[V]) bool {
	ctx := context.Background()
	payload, err := c.codec.Encode(e.Data)
	if err != nil {
		c.log.Warn("park encode error", Fields{"key": key, "err": err})
		return false
	}
	frame, err := wire.EncodeSnapshot(wire.Snapshot{
		Key:       key,
		Gen:       c.snapshotGen(key),
		FetchedAt: e.FetchedAt,
		Payload:   payload,
	})
	if err != nil {
		c.log.Warn("park frame error", Fields{"key": key, "err": err})
		return false
	}

	sk := c.storageKey(key)
	ok, err := c.store.Set(ctx, sk, frame, c.computeSetCost(sk, frame), c.retentionTTL)
	if err != nil {
		c.log.Warn("park store error", Fields{"key": key, "err": err})
		return false
	}
	return ok
}

// hydrate loads a parked snapshot. Concurrent subscribers of the same key
// share one load.
func (c *cache[V]) hydrate(key string) (Entry[V], bool) {
	v, err, _ := c.hydrating.Do(key, func() (any, error) {
		return c.loadParked(key)
	})
	if err != nil {
		c.log.Warn("hydrate error", Fields{"key": key, "err": err})
		return Entry[V]{}, false
	}
	e, ok := v.(*Entry[V])
	if !ok || e == nil {
		return Entry[V]{}, false
	}
	return *e, true
}

func (c *cache[V]) loadParked(key string) (*Entry[V], error) {
	ctx := context.Background()
	sk := c.storageKey(key)
	raw, ok, err := c.store.Get(ctx, sk)
	if err != nil || !ok {
		return nil, err
	}

	snap, err := wire.DecodeSnapshot(raw)
	if err != nil {
		c.reject(sk, "corrupt", true)
		return nil, nil
	}
	if snap.Key != key {
		// hash collision; the frame belongs to another key
		c.reject(sk, "key_mismatch", false)
		return nil, nil
	}
	if snap.Gen != c.snapshotGen(key) {
		c.reject(sk, "gen_mismatch", true)
		return nil, nil
	}
	v, err := c.codec.Decode(snap.Payload)
	if err != nil {
		c.reject(sk, "value_decode", true)
		return nil, nil
	}

	// the key is live again; its next eviction parks a newer value
	_ = c.store.Del(ctx, sk)
	return &Entry[V]{Data: v, HasData: true, FetchedAt: snap.FetchedAt}, nil
}

func (c *cache[V]) reject(storageKey, reason string, drop bool) {
	c.hooks.SnapshotRejected(storageKey, reason)
	c.log.Debug("snapshot rejected", Fields{"storage_key": storageKey, "reason": reason})
	if drop {
		// Self-heal: bad snapshots are never useful again
		_ = c.store.Del(context.Background(), storageKey)
	}
}

// dropParked removes the snapshot of a key that is not live.
func (c *cache[V]) dropParked(key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Del(context.Background(), c.storageKey(key)); err != nil {
		c.log.Debug("drop parked error", Fields{"key": key, "err": err})
	}
}
