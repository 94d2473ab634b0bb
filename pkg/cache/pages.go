package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/esi-pager/pkg/pager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is used when PagesConfig.TTL is not set.
const DefaultTTL = 5 * time.Minute

// PagesConfig configures a read-through page cache.
type PagesConfig struct {
	// Source names the list in cache keys (required).
	Source string

	// Query is folded into the cache keys (optional).
	Query url.Values

	// TTL is how long a page stays cached (default: 5m).
	TTL time.Duration
}

// Pages is a read-through cache in front of a page fetch function.
type Pages[T any] struct {
	manager *Manager
	fetch   pager.PageFunc[T]
	config  PagesConfig
	logger  zerolog.Logger
}

// NewPages wraps fetch with the cache held by manager.
func NewPages[T any](manager *Manager, fetch pager.PageFunc[T], cfg PagesConfig) (*Pages[T], error) {
	if manager == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if fetch == nil {
		return nil, fmt.Errorf("fetch function is required")
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("source name is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Pages[T]{
		manager: manager,
		fetch:   fetch,
		config:  cfg,
		logger:  log.With().Str("component", "cache").Str("source", cfg.Source).Logger(),
	}, nil
}

// Source returns the source name used in cache keys.
func (p *Pages[T]) Source() string {
	return p.config.Source
}

// Fetch returns page from the cache, fetching and storing it on a miss.
// It has the signature of pager.PageFunc.
func (p *Pages[T]) Fetch(ctx context.Context, page int) ([]T, error) {
	key := p.key(page)

	entry, err := p.manager.Get(ctx, key)
	switch {
	case err == nil:
		items, decodeErr := DecodeItems[T](entry)
		if decodeErr == nil {
			p.logger.Debug().Int("page", page).Int("items", len(items)).Msg("Page served from cache")
			return items, nil
		}
		p.logger.Warn().Err(decodeErr).Int("page", page).Msg("Discarding corrupt cache entry")
		_ = p.manager.Delete(ctx, key)
	case errors.Is(err, ErrCacheMiss):
	default:
		CacheFallbacks.Inc()
		p.logger.Warn().Err(err).Int("page", page).Msg("Cache unavailable, fetching upstream")
	}

	items, err := p.fetch(ctx, page)
	if err != nil {
		return nil, err
	}

	p.store(ctx, key, items)
	return items, nil
}

// Invalidate drops every cached page of the source.
func (p *Pages[T]) Invalidate(ctx context.Context) (int, error) {
	n, err := p.manager.DeleteSource(ctx, p.config.Source)
	if err != nil {
		return 0, err
	}
	p.logger.Info().Int("pages", n).Msg("Cache invalidated")
	return n, nil
}

func (p *Pages[T]) store(ctx context.Context, key PageKey, items []T) {
	entry, err := NewPageEntry(items, p.config.TTL)
	if err != nil {
		p.logger.Warn().Err(err).Int("page", key.Page).Msg("Failed to encode page for cache")
		return
	}
	if err := p.manager.Set(ctx, key, entry); err != nil {
		CacheFallbacks.Inc()
		p.logger.Warn().Err(err).Int("page", key.Page).Msg("Failed to store page in cache")
	}
}

func (p *Pages[T]) key(page int) PageKey {
	return PageKey{Source: p.config.Source, Page: page, Query: p.config.Query}
}
