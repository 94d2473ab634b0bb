package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	// CacheMisses tracks page cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_cache_errors_total",
			Help: "Total number of page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "scan"
	)

	// CacheFallbacks tracks fetches that went upstream because Redis failed
	CacheFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_cache_fallbacks_total",
			Help: "Total number of page fetches that bypassed a failing cache",
		},
	)

	// WarmedPages tracks pages processed by Warm
	WarmedPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_cache_warmed_pages_total",
			Help: "Total number of pages processed by cache warming",
		},
		[]string{"result"}, // "success", "failure"
	)
)
