// Package cache provides the TTL key-value store backing both response
// caching and credential caching for the ETIM gateway.
//
// Two implementations of the Store interface are provided:
//
//   - RedisStore: the production backend; expiry enforced by Redis
//   - MemoryStore: in-process map with lazy expiry, for tests and
//     single-process embedding
//
// Caching here is strictly an optimization. A store that becomes
// unreachable degrades every lookup to a miss; it never fails the
// request that wanted the cache.
//
// # Cache Keys
//
// Keys are derived from the logical operation, not the raw HTTP
// request: endpoint id, language, the sorted parameter set, and the
// requested detail shaping all feed a deterministic hash.
//
//	key := cache.Key{
//		Endpoint: "class/search",
//		Language: "EN",
//		Params:   map[string]string{"searchString": "cable", "size": "10"},
//	}
//	data, err := store.Get(ctx, key.String())
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream
//	}
//
// # TTL Classes
//
// Every endpoint carries a fixed TTL class (search / detail / static)
// mapped to a concrete duration by TTLPolicy. Search results live for
// an hour, entity details for a day, static metadata for a week.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - etim_cache_hits_total{layer} - Cache hits
//   - etim_cache_misses_total - Cache misses
//   - etim_cache_size_bytes{layer} - Bytes written
//   - etim_cache_errors_total{operation} - Store operation errors
package cache
