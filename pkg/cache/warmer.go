package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WarmConfig holds cache warming configuration.
type WarmConfig struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	// Recommendation: 10 workers for ESI (300 req/min = 5 req/s)
	MaxConcurrency int

	// Timeout per page fetch.
	Timeout time.Duration
}

// DefaultWarmConfig returns safe default warming configuration for ESI.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// WarmResult summarizes a Warm run.
type WarmResult struct {
	// Warmed is the number of pages now in the cache.
	Warmed int

	// Failed is the number of pages whose fetch failed.
	Failed int
}

type warmOutcome struct {
	page int
	err  error
}

// Warm fetches pages [0, pages) through the cache with a worker pool so
// that later reads are served from Redis. It returns the first fetch
// error together with the partial result.
func (p *Pages[T]) Warm(ctx context.Context, pages int, cfg WarmConfig) (WarmResult, error) {
	if pages <= 0 {
		return WarmResult{}, nil
	}

	defaults := DefaultWarmConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxConcurrency > pages {
		cfg.MaxConcurrency = pages
	}

	start := time.Now()
	p.logger.Info().
		Int("pages", pages).
		Int("workers", cfg.MaxConcurrency).
		Msg("Starting cache warm")

	queue := make(chan int, pages)
	for page := 0; page < pages; page++ {
		queue <- page
	}
	close(queue)

	outcomes := make(chan warmOutcome, pages)

	var wg sync.WaitGroup
	for i := 0; i < cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go p.warmWorker(ctx, cfg.Timeout, queue, outcomes, &wg, i)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var (
		res      WarmResult
		firstErr error
	)
	for out := range outcomes {
		if out.err != nil {
			res.Failed++
			WarmedPages.WithLabelValues("failure").Inc()
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		res.Warmed++
		WarmedPages.WithLabelValues("success").Inc()
	}

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}

	if firstErr != nil {
		p.logger.Warn().
			Err(firstErr).
			Int("warmed", res.Warmed).
			Int("failed", res.Failed).
			Int("pages", pages).
			Msg("Cache warm incomplete")
		return res, fmt.Errorf("warm %s (partial: %d/%d pages): %w", p.config.Source, res.Warmed, pages, firstErr)
	}

	p.logger.Info().
		Int("pages", res.Warmed).
		Dur("duration", time.Since(start)).
		Msg("Cache warm complete")

	return res, nil
}

// warmWorker processes pages from the queue.
func (p *Pages[T]) warmWorker(ctx context.Context, timeout time.Duration, queue <-chan int, outcomes chan<- warmOutcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for page := range queue {
		if ctx.Err() != nil {
			p.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", processed).
				Msg("Warm worker stopping (context cancelled)")
			return
		}

		pageCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := p.Fetch(pageCtx, page)
		cancel()

		if err != nil {
			p.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", page).
				Msg("Warm page fetch failed")
		}

		// outcomes is buffered for every page
		outcomes <- warmOutcome{page: page, err: err}
		processed++
	}
}
