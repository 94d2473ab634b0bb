package view

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/esi-pager/pkg/pager"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNilController is returned by New when no controller is given.
	ErrNilController = errors.New("controller is required")

	// ErrNoItemRenderer is returned by New when Renderers.Item is nil.
	ErrNoItemRenderer = errors.New("item renderer is required")
)

// Renderers turns items and status rows into rendered nodes of type N.
// Only Item is required; every other renderer defaults to the zero N.
type Renderers[T, N any] struct {
	// Item renders a loaded item at its index.
	Item func(item T, index int) N

	// Loading renders the status row while the next page is being fetched.
	Loading func() N

	// Error renders a failed fetch when retry is disabled, and stands in
	// for Retry when that is not set.
	Error func(err error) N

	// Retry renders a retry affordance. Calling retry clears the error so
	// the next render of the status row fetches again.
	Retry func(retry func()) N

	// Empty renders the status row when the source had no items at all.
	Empty func() N

	// End renders the terminal status row after the last page.
	End func() N
}

type options struct {
	retry    bool
	onChange func()
	onFault  func(error)
}

// Option configures an Adapter.
type Option func(*options)

// WithRetry selects the retry affordance (true, default) or a static error row (false).
func WithRetry(enabled bool) Option {
	return func(o *options) { o.retry = enabled }
}

// WithOnChange registers a hook called after every controller state change.
func WithOnChange(fn func()) Option {
	return func(o *options) { o.onChange = fn }
}

// WithOnFault registers a hook receiving contract violations reported by
// FetchNextPage (see pager.ErrInvalidPageSize).
func WithOnFault(fn func(error)) Option {
	return func(o *options) { o.onFault = fn }
}

// Adapter resolves logical row indexes against a controller.
type Adapter[T, N any] struct {
	ctx     context.Context
	ctrl    *pager.Controller[T]
	render  Renderers[T, N]
	opts    options
	sub     pager.SubscriptionID
	updates chan struct{}
	logger  zerolog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

// New creates an adapter subscribed to ctrl. Fetches started by the
// adapter run with ctx.
func New[T, N any](ctx context.Context, ctrl *pager.Controller[T], r Renderers[T, N], opts ...Option) (*Adapter[T, N], error) {
	if ctrl == nil {
		return nil, ErrNilController
	}
	if r.Item == nil {
		return nil, ErrNoItemRenderer
	}

	o := options{retry: true}
	for _, opt := range opts {
		opt(&o)
	}

	a := &Adapter[T, N]{
		ctx:     ctx,
		ctrl:    ctrl,
		render:  r,
		opts:    o,
		updates: make(chan struct{}, 1),
		logger:  log.With().Str("component", "view").Str("source", ctrl.Name()).Logger(),
	}
	a.idle = sync.NewCond(&a.mu)
	a.sub = ctrl.Subscribe(a.onChange)

	return a, nil
}

// onChange coalesces notifications into a single pending update.
func (a *Adapter[T, N]) onChange() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	select {
	case a.updates <- struct{}{}:
	default:
	}
	a.mu.Unlock()

	if a.opts.onChange != nil {
		a.opts.onChange()
	}
}

// Updates delivers a value whenever the surface should re-render.
// Consecutive changes are coalesced. The channel is closed by Close.
func (a *Adapter[T, N]) Updates() <-chan struct{} {
	return a.updates
}

// Controller returns the underlying controller.
func (a *Adapter[T, N]) Controller() *pager.Controller[T] {
	return a.ctrl
}

// ItemCount is the number of rows the surface should report: loaded
// items plus the status row.
func (a *Adapter[T, N]) ItemCount() int {
	return a.ctrl.Len() + 1
}

// Kind classifies row i without side effects.
func (a *Adapter[T, N]) Kind(i int) RowKind {
	return a.kind(i, a.ctrl.Status())
}

func (a *Adapter[T, N]) kind(i int, st pager.Status) RowKind {
	switch {
	case i < 0 || i > st.Len:
		return RowOutOfRange
	case i < st.Len:
		return RowItem
	case st.NoItemsFound():
		return RowEmpty
	case st.Err != nil:
		if a.opts.retry {
			return RowRetry
		}
		return RowError
	case st.HasMore:
		return RowLoading
	default:
		return RowEnd
	}
}

// Row renders row i. Rendering the loading row starts fetching the next
// page in the background.
func (a *Adapter[T, N]) Row(i int) N {
	st := a.ctrl.Status()
	kind := a.kind(i, st)

	switch kind {
	case RowItem:
		item, ok := a.ctrl.ItemAt(i)
		if !ok {
			// removed between Status and ItemAt
			var zero N
			return zero
		}
		return a.render.Item(item, i)
	case RowLoading:
		if !st.InFlight {
			a.fetchNext()
		}
		return call0(a.render.Loading)
	case RowRetry:
		if a.render.Retry != nil {
			return a.render.Retry(a.ctrl.Retry)
		}
		return a.renderError(st.Err)
	case RowError:
		return a.renderError(st.Err)
	case RowEmpty:
		return call0(a.render.Empty)
	case RowEnd:
		return call0(a.render.End)
	default:
		var zero N
		return zero
	}
}

// Window renders rows [from, to) clamped to [0, ItemCount()).
func (a *Adapter[T, N]) Window(from, to int) []N {
	if from < 0 {
		from = 0
	}
	if count := a.ItemCount(); to > count {
		to = count
	}
	if to <= from {
		return nil
	}

	rows := make([]N, 0, to-from)
	for i := from; i < to; i++ {
		rows = append(rows, a.Row(i))
	}
	return rows
}

// Wait blocks until no fetch started by the adapter is running. It is
// safe to call from several goroutines while rows are being rendered.
func (a *Adapter[T, N]) Wait() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.pending > 0 {
		a.idle.Wait()
	}
}

// Close unsubscribes from the controller and closes Updates. Fetches
// already started keep running; use Wait to drain them.
func (a *Adapter[T, N]) Close() {
	a.ctrl.Unsubscribe(a.sub)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.updates)
}

func (a *Adapter[T, N]) fetchNext() {
	a.mu.Lock()
	a.pending++
	a.mu.Unlock()

	go func() {
		defer a.fetchDone()

		if err := a.ctrl.FetchNextPage(a.ctx); err != nil {
			a.logger.Error().Err(err).Msg("Page fetch rejected")
			if a.opts.onFault != nil {
				a.opts.onFault(err)
			}
		}
	}()
}

func (a *Adapter[T, N]) fetchDone() {
	a.mu.Lock()
	a.pending--
	if a.pending == 0 {
		a.idle.Broadcast()
	}
	a.mu.Unlock()
}

func (a *Adapter[T, N]) renderError(err error) N {
	if a.render.Error != nil {
		return a.render.Error(err)
	}
	var zero N
	return zero
}

func call0[N any](fn func() N) N {
	if fn == nil {
		var zero N
		return zero
	}
	return fn()
}
