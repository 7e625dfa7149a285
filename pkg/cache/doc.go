// Package cache provides the process-local response cache that large
// bridge responses are diverted into, with pagination and jq filtering
// for incremental retrieval.
//
// Entries are keyed by a random 128-bit id generated at store time.
// Each entry keeps its payload together with a serialization computed
// once, so size checks, pagination and the retrieval surface never
// re-serialize. The cache is best-effort and bounded:
//
//   - a global size ceiling (default 100 MB) enforced by LRU eviction
//     at store time
//   - a per-entry expiration window (default 30 minutes) checked
//     lazily on every read
//
// There is no background sweeper: a cache nobody touches can hold
// expired, unreclaimed memory until the next store, fetch or list
// call. A deployment that needs a hard memory bound must add a
// periodic sweep on top.
//
// # Basic Usage
//
//	c := cache.New("default", cache.DefaultConfig())
//
//	id, err := c.Store(payload, map[string]any{"tool": "manage_scene"})
//	if err != nil {
//		return err
//	}
//
//	// Whole document
//	data, ok := c.Fetch(id)
//
//	// One page at a time
//	page, ok := c.FetchPage(id, 1, 200*1024)
//
//	// Structural filter; large results are re-cached and chained
//	res, err := c.ApplyFilter(id, ".items[] | select(.active)", true)
//	if err != nil {
//		var ferr *cache.FilterError
//		if errors.As(err, &ferr) {
//			// bad expression, not a missing entry
//		}
//	}
//
// # Named caches
//
// A Registry gives feature areas logically separate caches without
// coordinating creation:
//
//	reg := cache.NewRegistry(cache.DefaultConfig())
//	c := reg.Get("default")
//
// # Payload shape
//
// Payloads are the dynamically shaped values produced by decoding the
// bridge's JSON: maps, sequences and scalars. Programmatically built
// payloads must use the same shapes ([]any, map[string]any) for
// pagination and filtering to see their structure.
//
// # Metrics
//
// The package exports Prometheus metrics labelled by cache name:
//
//   - unity_cache_hits_total{cache} / unity_cache_misses_total{cache}
//   - unity_cache_stores_total{cache}
//   - unity_cache_evictions_total{cache}
//   - unity_cache_expirations_total{cache}
//   - unity_cache_size_bytes{cache} / unity_cache_entries{cache}
package cache
