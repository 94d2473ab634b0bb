package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch results recorded in pager_fetches_total.
const (
	resultSuccess = "success"
	resultEmpty   = "empty"
	resultFailure = "failure"
	resultInvalid = "invalid_page_size"
)

var (
	pagerFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_fetches_total",
		Help: "Total page fetches by source and result",
	}, []string{"source", "result"})

	pagerFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds by source",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	pagerFetchSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_fetch_suppressed_total",
		Help: "FetchNextPage calls skipped because a fetch was in flight or the source was exhausted",
	}, []string{"source"})

	pagerStaleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_stale_results_total",
		Help: "Fetch results discarded because a reset happened while they were in flight",
	}, []string{"source"})

	pagerResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_resets_total",
		Help: "Total controller resets by source",
	}, []string{"source"})

	pagerLoadedItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pager_loaded_items",
		Help: "Items currently loaded by source",
	}, []string{"source"})
)
