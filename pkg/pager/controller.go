package pager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PageFunc fetches one page by its zero-based index.
// It must return at most Config.PageSize items. An empty result means
// there is no more data.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// Config holds controller configuration.
type Config struct {
	// PageSize is the maximum number of items a single page may contain.
	PageSize int

	// Name labels logs and metrics for this controller (e.g. the endpoint).
	Name string
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 20,
		Name:     "default",
	}
}

// Controller loads pages sequentially and keeps the accumulated items.
// It is safe for concurrent use.
type Controller[T any] struct {
	fetch  PageFunc[T]
	config Config
	logger zerolog.Logger
	subs   subscribers

	mu          sync.Mutex
	items       []T
	pagesLoaded int
	hasMore     bool
	err         error
	inFlight    bool
	generation  uint64
}

// New creates a controller in its initial state.
func New[T any](fetch PageFunc[T], cfg Config) (*Controller[T], error) {
	if fetch == nil {
		return nil, ErrNilFetch
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive (got %d)", ErrInvalidConfig, cfg.PageSize)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}

	c := &Controller[T]{
		fetch:  fetch,
		config: cfg,
		logger: log.With().Str("component", "pager").Str("source", cfg.Name).Logger(),
	}
	c.clearLocked()

	return c, nil
}

// clearLocked puts the state back to its initial values and starts a new
// generation. Callers must hold c.mu (or own c exclusively).
func (c *Controller[T]) clearLocked() {
	c.items = nil
	c.pagesLoaded = 0
	c.hasMore = true
	c.err = nil
	c.inFlight = false
	c.generation++
}

// Reset clears all loaded data. A fetch still in flight keeps running but
// its result will be discarded.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	wasInFlight := c.inFlight
	c.clearLocked()
	generation := c.generation
	c.mu.Unlock()

	pagerResetsTotal.WithLabelValues(c.config.Name).Inc()
	pagerLoadedItems.WithLabelValues(c.config.Name).Set(0)

	c.logger.Info().
		Uint64("generation", generation).
		Bool("fetch_abandoned", wasInFlight).
		Msg("Pager reset")

	c.subs.notify()
}

// FetchNextPage requests the next page and blocks until it resolves.
//
// The call is a no-op while another fetch is in flight or after an empty
// page was received. Fetch failures are stored in the error slot and do
// not produce a return value; the only error returned is an
// *InvalidPageSizeError when the PageFunc broke its contract.
func (c *Controller[T]) FetchNextPage(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight || !c.hasMore {
		inFlight := c.inFlight
		c.mu.Unlock()

		pagerFetchSuppressed.WithLabelValues(c.config.Name).Inc()
		c.logger.Debug().
			Bool("in_flight", inFlight).
			Msg("Fetch suppressed")
		return nil
	}
	c.inFlight = true
	page := c.pagesLoaded
	generation := c.generation
	c.mu.Unlock()

	c.logger.Debug().Int("page", page).Msg("Fetching page")

	start := time.Now()
	items, err := c.fetch(ctx, page)
	duration := time.Since(start)
	pagerFetchDuration.WithLabelValues(c.config.Name).Observe(duration.Seconds())

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()

		pagerStaleResults.WithLabelValues(c.config.Name).Inc()
		c.logger.Debug().
			Int("page", page).
			Uint64("generation", generation).
			Msg("Discarding stale page result")
		return nil
	}

	c.inFlight = false

	var fault error
	result := resultSuccess
	switch {
	case err != nil:
		c.err = err
		result = resultFailure
	case len(items) > c.config.PageSize:
		fault = &InvalidPageSizeError{Page: page, Got: len(items), Max: c.config.PageSize}
		c.err = fault
		result = resultInvalid
	case len(items) == 0:
		c.hasMore = false
		c.err = nil
		result = resultEmpty
	default:
		c.items = append(c.items, items...)
		c.pagesLoaded++
		c.err = nil
	}
	loaded := len(c.items)
	c.mu.Unlock()

	pagerFetchesTotal.WithLabelValues(c.config.Name, result).Inc()
	pagerLoadedItems.WithLabelValues(c.config.Name).Set(float64(loaded))

	switch result {
	case resultFailure:
		c.logger.Warn().
			Err(err).
			Int("page", page).
			Dur("duration", duration).
			Msg("Page fetch failed")
	case resultInvalid:
		c.logger.Error().
			Err(fault).
			Int("page", page).
			Msg("Page fetch function returned an oversized page")
	case resultEmpty:
		c.logger.Debug().
			Int("page", page).
			Int("loaded", loaded).
			Msg("No more pages")
	default:
		c.logger.Debug().
			Int("page", page).
			Int("items", len(items)).
			Int("loaded", loaded).
			Dur("duration", duration).
			Msg("Page loaded")
	}

	c.subs.notify()
	return fault
}

// Retry clears the last error so the next FetchNextPage re-requests the
// failed page. It does not fetch by itself.
func (c *Controller[T]) Retry() {
	c.mu.Lock()
	c.err = nil
	page := c.pagesLoaded
	c.mu.Unlock()

	c.logger.Debug().Int("page", page).Msg("Retry requested")
	c.subs.notify()
}

// RemoveItem drops every loaded item matching pred and returns how many
// were removed. The page counter is not changed. A nil pred removes nothing.
func (c *Controller[T]) RemoveItem(pred func(T) bool) int {
	if pred == nil {
		return 0
	}

	c.mu.Lock()
	kept := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if !pred(item) {
			kept = append(kept, item)
		}
	}
	removed := len(c.items) - len(kept)
	c.items = kept
	c.mu.Unlock()

	pagerLoadedItems.WithLabelValues(c.config.Name).Set(float64(len(kept)))
	c.subs.notify()
	return removed
}

// Subscribe registers fn to be called after every state change.
func (c *Controller[T]) Subscribe(fn Listener) SubscriptionID {
	return c.subs.add(fn)
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (c *Controller[T]) Unsubscribe(id SubscriptionID) {
	c.subs.remove(id)
}

// Close releases all subscribers.
func (c *Controller[T]) Close() {
	c.subs.clear()
}

// PageSize returns the configured page size.
func (c *Controller[T]) PageSize() int {
	return c.config.PageSize
}

// Name returns the configured controller name.
func (c *Controller[T]) Name() string {
	return c.config.Name
}

// Items returns a copy of the loaded items in page order.
func (c *Controller[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of loaded items.
func (c *Controller[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// PagesLoaded returns the number of successfully loaded non-empty pages,
// which is also the index of the next page to request.
func (c *Controller[T]) PagesLoaded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagesLoaded
}

// HasMore reports whether another page may exist.
func (c *Controller[T]) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Err returns the error of the last failed fetch, or nil.
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// InFlight reports whether a fetch is currently running.
func (c *Controller[T]) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// NoItemsFound reports whether the first page came back empty.
func (c *Controller[T]) NoItemsFound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0 && !c.hasMore
}

// State returns the current lifecycle state.
func (c *Controller[T]) State() State {
	return c.Status().State()
}

// Status returns the scalar state fields read under a single lock.
func (c *Controller[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller[T]) statusLocked() Status {
	return Status{
		Len:         len(c.items),
		PagesLoaded: c.pagesLoaded,
		HasMore:     c.hasMore,
		Err:         c.err,
		InFlight:    c.inFlight,
	}
}

// ItemAt returns the loaded item at index i.
func (c *Controller[T]) ItemAt(i int) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Snapshot returns all state fields and a copy of the items read under a
// single lock.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]T, len(c.items))
	copy(items, c.items)
	return Snapshot[T]{
		Status: c.statusLocked(),
		Items:  items,
	}
}
