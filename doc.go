// Package swrcache implements an in-process stale-while-revalidate resource cache.
// A cached entry is served immediately to every subscriber while a background
// fetch refreshes it; concurrent fetches for one key collapse into a single call.
//
// Components:
//   - Registry: key -> entry plus the subscribers of that key. Entries are
//     created lazily and evicted once the last subscriber leaves and IdleTTL
//     has elapsed.
//   - Deduplicator: at most one in-flight fetch per key. Callers that arrive
//     while a fetch runs receive the same *Future.
//   - Scheduler: refresh interval, focus regain, network reconnect, explicit
//     invalidation and error retries, guarded by DedupingInterval.
//   - Notifier: one synchronous callback per subscriber per entry transition,
//     in transition order for a key.
//
// Keys:
//
//	<kind>:<id>?<sorted, escaped params>  e.g. portfolio:123?currency=USD
//
// Generations:
//
//	Invalidate and Mutate bump a per-key generation (GenStore). A fetch records
//	the generation it started under and its result is dropped if the generation
//	moved meanwhile, so a slow response never overwrites a newer local write.
//
// Retention:
//
//	With Options.Store set, the last good value of an evicted key is encoded
//	with Options.Codec and parked in the provider for RetentionTTL. The next
//	subscriber gets it back instantly (marked stale, so it revalidates).
//
// Usage:
//
//	c, _ := swrcache.New[Portfolio](swrcache.Options[Portfolio]{Namespace: "portfolio"})
//	defer c.Close(ctx)
//	res, _ := c.Use("portfolio:123", fetchPortfolio, swrcache.ResourceOptions{
//	    RefreshInterval: time.Minute,
//	}, func(e swrcache.Entry[Portfolio]) { render(e) })
//	defer res.Close()
package swrcache
