package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// hitsTotal tracks successful fetches by cache name.
	hitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unity_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"cache"},
	)

	// missesTotal tracks fetches of absent or expired entries.
	missesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unity_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"cache"},
	)

	// storesTotal tracks entries inserted.
	storesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unity_cache_stores_total",
			Help: "Total number of entries stored in the response cache",
		},
		[]string{"cache"},
	)

	// evictionsTotal tracks entries removed to respect the size
	// ceiling.
	evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unity_cache_evictions_total",
			Help: "Total number of entries evicted by the size ceiling",
		},
		[]string{"cache"},
	)

	// expirationsTotal tracks entries reclaimed after their expiry
	// window.
	expirationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unity_cache_expirations_total",
			Help: "Total number of entries reclaimed after expiry",
		},
		[]string{"cache"},
	)

	// sizeBytes tracks live serialized bytes per cache.
	sizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unity_cache_size_bytes",
			Help: "Current size of the response cache in bytes",
		},
		[]string{"cache"},
	)

	// entriesGauge tracks live entry count per cache.
	entriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unity_cache_entries",
			Help: "Current number of entries in the response cache",
		},
		[]string{"cache"},
	)
)
