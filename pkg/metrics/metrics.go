// Package metrics provides centralized Prometheus metrics registry for
// the bridge client. All metrics are defined in their respective
// packages (bridge, cache) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the bridge
// client. All metrics are automatically registered via promauto in
// their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Bridge Metrics (pkg/bridge):
//   - unity_bridge_requests_total{command, status} (Counter): Commands by name and outcome
//   - unity_bridge_request_duration_seconds{command} (Histogram): Command round-trip duration
//   - unity_bridge_errors_total{class} (Counter): Errors by class
//     (timeout, closed, refused, remote, invalid, io, verification)
//   - unity_bridge_connection_drops_total (Counter): Connection invalidations
//   - unity_bridge_cached_responses_total (Counter): Oversized responses diverted into the cache
//
// Cache Metrics (pkg/cache):
//   - unity_cache_hits_total{cache} (Counter): Cache hits by cache name
//   - unity_cache_misses_total{cache} (Counter): Cache misses
//   - unity_cache_stores_total{cache} (Counter): Entries stored
//   - unity_cache_evictions_total{cache} (Counter): Entries evicted by the size ceiling
//   - unity_cache_expirations_total{cache} (Counter): Entries reclaimed after expiry
//   - unity_cache_size_bytes{cache} (Gauge): Live serialized bytes
//   - unity_cache_entries{cache} (Gauge): Live entry count
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(unity_cache_hits_total[5m])) /
//   (sum(rate(unity_cache_hits_total[5m])) + sum(rate(unity_cache_misses_total[5m])))
//
//   # Divert Rate
//   rate(unity_bridge_cached_responses_total[5m]) / rate(unity_bridge_requests_total[5m])
//
//   # P95 Command Latency
//   histogram_quantile(0.95, rate(unity_bridge_request_duration_seconds_bucket[5m]))
//
//   # Connection Stability
//   rate(unity_bridge_connection_drops_total[15m])
