// Package metrics documents the Prometheus metrics exported by the
// ETIM gateway. All metrics are defined in their respective packages
// (client, cache, auth, governor) to maintain modularity and avoid
// circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - etim_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and HTTP status
//   - etim_request_duration_seconds{endpoint} (Histogram): Operation duration by endpoint
//   - etim_auth_retries_total (Counter): Requests retried after a 401 and forced refresh
//   - etim_errors_total{class} (Counter): Pipeline errors by class (auth, upstream)
//
// Cache Metrics (pkg/cache):
//   - etim_cache_hits_total{layer} (Counter): Cache hits by layer (redis, memory)
//   - etim_cache_misses_total (Counter): Cache misses
//   - etim_cache_size_bytes{layer} (Gauge): Bytes written to the cache
//   - etim_cache_errors_total{operation} (Counter): Store operation errors
//
// Auth Metrics (pkg/auth):
//   - etim_auth_refreshes_total{trigger} (Counter): Credential exchanges by trigger (expiry, forced)
//   - etim_auth_refresh_failures_total (Counter): Failed credential exchanges
//
// Governor Metrics (pkg/governor):
//   - etim_governor_truncations_total (Counter): Full-mode responses degraded to summary
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(etim_cache_hits_total[5m])) /
//   (sum(rate(etim_cache_hits_total[5m])) + sum(rate(etim_cache_misses_total[5m])))
//
//   # Refresh storms (should stay near zero under singleflight)
//   rate(etim_auth_refreshes_total[5m])
//
//   # P95 Operation Latency
//   histogram_quantile(0.95, rate(etim_request_duration_seconds_bucket[5m]))
