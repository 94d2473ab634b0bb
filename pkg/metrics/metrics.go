// Package metrics exposes the Prometheus metrics of esi-pager.
// All metrics are defined in their respective packages (pager, source,
// cache, ratelimit) via promauto and land in the default registry.
//
// This package provides the HTTP handler and the metric catalog.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer used by esi-pager.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Pager Metrics (pkg/pager):
//   - pager_fetches_total{source, result} (Counter): Page fetches by result (success, empty, failure, invalid_page_size)
//   - pager_fetch_duration_seconds{source} (Histogram): Page fetch duration
//   - pager_fetch_suppressed_total{source} (Counter): FetchNextPage calls ignored while in flight or exhausted
//   - pager_stale_results_total{source} (Counter): Fetch results dropped after a reset
//   - pager_resets_total{source} (Counter): Controller resets
//   - pager_loaded_items{source} (Gauge): Items currently loaded
//
// Source Metrics (pkg/source):
//   - pager_source_requests_total{endpoint, status} (Counter): Page requests by endpoint and HTTP status
//   - pager_source_request_duration_seconds{endpoint} (Histogram): Page request duration
//   - pager_source_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - pager_source_skipped_total{endpoint} (Counter): Requests past X-Pages answered locally
//   - pager_source_retries_total{error_class} (Counter): Retry attempts
//   - pager_source_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - pager_source_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pager_errors_remaining{scope} (Gauge): Errors remaining in the upstream error window
//   - pager_rate_limit_blocks_total{scope} (Counter): Requests blocked due to critical error limit
//   - pager_rate_limit_throttles_total{scope} (Counter): Requests throttled due to warning error limit
//
// Cache Metrics (pkg/cache):
//   - pager_cache_hits_total (Counter): Page cache hits
//   - pager_cache_misses_total (Counter): Page cache misses
//   - pager_cache_errors_total{operation} (Counter): Redis operation errors
//   - pager_cache_fallbacks_total (Counter): Fetches that bypassed a failing cache
//   - pager_cache_warmed_pages_total{result} (Counter): Pages processed by cache warming
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pager_cache_hits_total[5m])) /
//   (sum(rate(pager_cache_hits_total[5m])) + sum(rate(pager_cache_misses_total[5m])))
//
//   # Page Failure Rate
//   sum(rate(pager_fetches_total{result="failure"}[5m])) by (source)
//
//   # Error Limit Status
//   pager_errors_remaining < 20
//
//   # P95 Page Request Latency
//   histogram_quantile(0.95, rate(pager_source_request_duration_seconds_bucket[5m]))
