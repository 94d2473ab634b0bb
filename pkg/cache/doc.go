// Package cache stores fetched pages in Redis so that a pager can be
// reset, restarted or shared between processes without refetching the
// upstream API.
//
// Pages wraps a page fetch function with a read-through cache:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	pages, err := cache.NewPages(manager, src.Pages("/v1/universe/types/", nil), cache.PagesConfig{
//		Source: "universe-types",
//		TTL:    5 * time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//
//	ctrl, err := pager.New(pages.Fetch, pager.Config{PageSize: 1000, Name: "universe-types"})
//
// Empty pages are cached as well, so the end of a list is remembered.
// Fetch errors are never cached. When Redis is unavailable, Fetch logs
// the failure and goes straight to the upstream fetch.
//
// # Warming
//
// Warm fills the cache for the first n pages with a bounded worker pool.
// The controller still consumes pages strictly in order; warming only
// makes those reads hit Redis.
//
//	res, err := pages.Warm(ctx, 20, cache.DefaultWarmConfig())
//
// # Metrics
//
//   - pager_cache_hits_total - Cache hits
//   - pager_cache_misses_total - Cache misses
//   - pager_cache_errors_total{operation} - Redis operation errors
//   - pager_cache_fallbacks_total - Fetches that bypassed a failing cache
//   - pager_cache_warmed_pages_total{result} - Pages processed by Warm
package cache
