package pager

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pageResult is a scripted response for one page index.
type pageResult struct {
	items []string
	err   error
}

// scriptedFetcher serves pages from a fixed script and records calls.
type scriptedFetcher struct {
	mu    sync.Mutex
	pages map[int][]pageResult
	calls []int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{pages: make(map[int][]pageResult)}
}

// on queues a response for page. Responses for the same page are served in order.
func (f *scriptedFetcher) on(page int, items []string, err error) *scriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page] = append(f.pages[page], pageResult{items: items, err: err})
	return f
}

func (f *scriptedFetcher) fetch(ctx context.Context, page int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, page)

	queue := f.pages[page]
	if len(queue) == 0 {
		return nil, nil
	}
	res := queue[0]
	if len(queue) > 1 {
		f.pages[page] = queue[1:]
	}
	return res.items, res.err
}

func (f *scriptedFetcher) callLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestController(t *testing.T, fetch PageFunc[string], pageSize int) *Controller[string] {
	t.Helper()

	ctrl, err := New(fetch, Config{PageSize: pageSize, Name: t.Name()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ctrl
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PageSize != 20 {
		t.Errorf("PageSize = %d, want 20", cfg.PageSize)
	}
	if cfg.Name != "default" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
}

func TestNew_Validation(t *testing.T) {
	fetch := func(ctx context.Context, page int) ([]string, error) { return nil, nil }

	tests := []struct {
		name    string
		fetch   PageFunc[string]
		config  Config
		wantErr error
	}{
		{
			name:    "nil fetch",
			fetch:   nil,
			config:  Config{PageSize: 10},
			wantErr: ErrNilFetch,
		},
		{
			name:    "zero page size",
			fetch:   fetch,
			config:  Config{PageSize: 0},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative page size",
			fetch:   fetch,
			config:  Config{PageSize: -3},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "valid",
			fetch:   fetch,
			config:  Config{PageSize: 1},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, err := New(tt.fetch, tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ctrl.Name() != "default" {
				t.Errorf("Expected default name, got %q", ctrl.Name())
			}
		})
	}
}

func TestController_InitialState(t *testing.T) {
	ctrl := newTestController(t, newScriptedFetcher().fetch, 3)

	if len(ctrl.Items()) != 0 {
		t.Errorf("Expected no items, got %v", ctrl.Items())
	}
	if ctrl.PagesLoaded() != 0 {
		t.Errorf("Expected 0 pages loaded, got %d", ctrl.PagesLoaded())
	}
	if !ctrl.HasMore() {
		t.Error("Expected HasMore to be true")
	}
	if ctrl.Err() != nil {
		t.Errorf("Expected no error, got %v", ctrl.Err())
	}
	if ctrl.NoItemsFound() {
		t.Error("Expected NoItemsFound to be false")
	}
	if ctrl.State() != StateIdle {
		t.Errorf("Expected state idle, got %s", ctrl.State())
	}
}

func TestController_ShortPageDoesNotEndList(t *testing.T) {
	f := newScriptedFetcher().
		on(0, []string{"a", "b", "c"}, nil).
		on(1, []string{"d"}, nil).
		on(2, []string{}, nil)
	ctrl := newTestController(t, f.fetch, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ctrl.FetchNextPage(ctx); err != nil {
			t.Fatalf("FetchNextPage %d failed: %v", i, err)
		}
	}

	want := []string{"a", "b", "c", "d"}
	if got := ctrl.Items(); !reflect.DeepEqual(got, want) {
		t.Errorf("Items = %v, want %v", got, want)
	}
	if !ctrl.HasMore() {
		t.Error("Expected HasMore to stay true after a short page")
	}
	if ctrl.PagesLoaded() != 2 {
		t.Errorf("Expected 2 pages loaded, got %d", ctrl.PagesLoaded())
	}

	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if ctrl.HasMore() {
		t.Error("Expected HasMore to be false after an empty page")
	}
	if ctrl.PagesLoaded() != 2 {
		t.Errorf("Empty page must not count as loaded, got %d", ctrl.PagesLoaded())
	}
	if ctrl.State() != StateExhausted {
		t.Errorf("Expected state exhausted, got %s", ctrl.State())
	}
	if got := f.callLog(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Expected page requests [0 1 2], got %v", got)
	}
}

func TestController_ItemsAreConcatenationInPageOrder(t *testing.T) {
	pages := [][]string{
		{"p0-a", "p0-b"},
		{"p1-a", "p1-b"},
		{"p2-a"},
		{"p3-a", "p3-b"},
	}
	f := newScriptedFetcher()
	var want []string
	for i, p := range pages {
		f.on(i, p, nil)
		want = append(want, p...)
	}
	ctrl := newTestController(t, f.fetch, 2)

	for range pages {
		if err := ctrl.FetchNextPage(context.Background()); err != nil {
			t.Fatalf("FetchNextPage failed: %v", err)
		}
	}

	if got := ctrl.Items(); !reflect.DeepEqual(got, want) {
		t.Errorf("Items = %v, want %v", got, want)
	}
	if ctrl.PagesLoaded() != len(pages) {
		t.Errorf("Expected %d pages loaded, got %d", len(pages), ctrl.PagesLoaded())
	}
}

func TestController_FailureThenRetry(t *testing.T) {
	networkDown := errors.New("network down")
	f := newScriptedFetcher().
		on(0, nil, networkDown).
		on(0, []string{"x", "y"}, nil)
	ctrl := newTestController(t, f.fetch, 2)
	ctx := context.Background()

	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Fatalf("Fetch failures must not be returned, got %v", err)
	}
	if !errors.Is(ctrl.Err(), networkDown) {
		t.Errorf("Expected error %v, got %v", networkDown, ctrl.Err())
	}
	if ctrl.PagesLoaded() != 0 || len(ctrl.Items()) != 0 {
		t.Errorf("Failure must not change data: pages=%d items=%v", ctrl.PagesLoaded(), ctrl.Items())
	}
	if ctrl.State() != StateErrored {
		t.Errorf("Expected state errored, got %s", ctrl.State())
	}

	ctrl.Retry()
	if ctrl.Err() != nil {
		t.Errorf("Expected Retry to clear the error, got %v", ctrl.Err())
	}
	if ctrl.PagesLoaded() != 0 {
		t.Errorf("Retry must not change pages loaded, got %d", ctrl.PagesLoaded())
	}
	if len(f.callLog()) != 1 {
		t.Errorf("Retry must not fetch by itself, calls=%v", f.callLog())
	}

	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if got := ctrl.Items(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("Items = %v, want [x y]", got)
	}
	if ctrl.PagesLoaded() != 1 {
		t.Errorf("Expected 1 page loaded, got %d", ctrl.PagesLoaded())
	}
	if got := f.callLog(); !reflect.DeepEqual(got, []int{0, 0}) {
		t.Errorf("Expected the failed page to be requested again, got %v", got)
	}
}

func TestController_FailureKeepsLoadedPages(t *testing.T) {
	f := newScriptedFetcher().
		on(0, []string{"a"}, nil).
		on(1, nil, errors.New("timeout"))
	ctrl := newTestController(t, f.fetch, 5)
	ctx := context.Background()

	_ = ctrl.FetchNextPage(ctx)
	_ = ctrl.FetchNextPage(ctx)

	if got := ctrl.Items(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Items = %v, want [a]", got)
	}
	if ctrl.Err() == nil {
		t.Error("Expected error to be set")
	}
}

func TestController_EmptyFirstPage(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{}, nil)
	ctrl := newTestController(t, f.fetch, 5)

	if err := ctrl.FetchNextPage(context.Background()); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}

	if ctrl.HasMore() {
		t.Error("Expected HasMore to be false")
	}
	if !ctrl.NoItemsFound() {
		t.Error("Expected NoItemsFound to be true")
	}
	if len(ctrl.Items()) != 0 {
		t.Errorf("Expected no items, got %v", ctrl.Items())
	}
}

func TestController_NoItemsFoundOnlyForEmptyFirstPage(t *testing.T) {
	f := newScriptedFetcher().
		on(0, []string{"a"}, nil).
		on(1, []string{}, nil)
	ctrl := newTestController(t, f.fetch, 5)
	ctx := context.Background()

	_ = ctrl.FetchNextPage(ctx)
	_ = ctrl.FetchNextPage(ctx)

	if ctrl.HasMore() {
		t.Error("Expected HasMore to be false")
	}
	if ctrl.NoItemsFound() {
		t.Error("NoItemsFound must be false when earlier pages had items")
	}
}

func TestController_ExhaustedStopsFetching(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{}, nil)
	ctrl := newTestController(t, f.fetch, 5)
	ctx := context.Background()

	notifications := 0
	ctrl.Subscribe(func() { notifications++ })

	_ = ctrl.FetchNextPage(ctx)
	_ = ctrl.FetchNextPage(ctx)
	_ = ctrl.FetchNextPage(ctx)

	if calls := f.callLog(); len(calls) != 1 {
		t.Errorf("Expected exactly one fetch once exhausted, got %v", calls)
	}
	if notifications != 1 {
		t.Errorf("Expected suppressed calls not to notify, got %d notifications", notifications)
	}

	ctrl.Reset()
	_ = ctrl.FetchNextPage(ctx)
	if calls := f.callLog(); len(calls) != 2 {
		t.Errorf("Expected fetching to resume after reset, got %v", calls)
	}
}

func TestController_InvalidPageSize(t *testing.T) {
	f := newScriptedFetcher().
		on(0, []string{"a"}, nil).
		on(1, []string{"b", "c", "d"}, nil)
	ctrl := newTestController(t, f.fetch, 2)
	ctx := context.Background()

	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}

	err := ctrl.FetchNextPage(ctx)
	if !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("Expected ErrInvalidPageSize, got %v", err)
	}

	var sizeErr *InvalidPageSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("Expected *InvalidPageSizeError, got %T", err)
	}
	if sizeErr.Page != 1 || sizeErr.Got != 3 || sizeErr.Max != 2 {
		t.Errorf("Unexpected error details: %+v", sizeErr)
	}

	if got := ctrl.Items(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Oversized page must not be appended, items=%v", got)
	}
	if ctrl.PagesLoaded() != 1 {
		t.Errorf("Expected 1 page loaded, got %d", ctrl.PagesLoaded())
	}
	if ctrl.InFlight() {
		t.Error("Expected in-flight to be cleared")
	}
	if !errors.Is(ctrl.Err(), ErrInvalidPageSize) {
		t.Errorf("Expected error slot to hold the fault, got %v", ctrl.Err())
	}
}

func TestController_ConcurrentFetchIsSuppressed(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context, page int) ([]string, error) {
		calls.Add(1)
		close(started)
		<-release
		return []string{"a"}, nil
	}
	ctrl := newTestController(t, fetch, 1)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- ctrl.FetchNextPage(ctx) }()

	<-started
	if !ctrl.InFlight() {
		t.Error("Expected in-flight while the fetch is pending")
	}
	if ctrl.State() != StateFetching {
		t.Errorf("Expected state fetching, got %s", ctrl.State())
	}

	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Errorf("Suppressed call returned error: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("Expected exactly 1 fetch invocation, got %d", n)
	}
	if ctrl.PagesLoaded() != 1 {
		t.Errorf("Expected 1 page loaded, got %d", ctrl.PagesLoaded())
	}
}

func TestController_ResetDiscardsStaleResult(t *testing.T) {
	started := make(chan int, 2)
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context, page int) ([]string, error) {
		n := calls.Add(1)
		started <- page
		if n == 1 {
			<-release
			return []string{"stale"}, nil
		}
		return []string{"fresh"}, nil
	}
	ctrl := newTestController(t, fetch, 1)
	ctx := context.Background()

	var notifications atomic.Int32
	ctrl.Subscribe(func() { notifications.Add(1) })

	done := make(chan error, 1)
	go func() { done <- ctrl.FetchNextPage(ctx) }()
	<-started

	ctrl.Reset()
	if ctrl.InFlight() {
		t.Error("Expected reset to clear in-flight")
	}

	// A new fetch may start while the abandoned one is still outstanding.
	if err := ctrl.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if page := <-started; page != 0 {
		t.Errorf("Expected page 0 after reset, got %d", page)
	}

	before := notifications.Load()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Stale fetch returned error: %v", err)
	}

	if got := ctrl.Items(); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Errorf("Stale result must be discarded, items=%v", got)
	}
	if ctrl.PagesLoaded() != 1 {
		t.Errorf("Expected 1 page loaded, got %d", ctrl.PagesLoaded())
	}
	if notifications.Load() != before {
		t.Error("Stale result must not notify")
	}
}

func TestController_ResetClearsState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ctrl *Controller[string])
	}{
		{
			name:  "fresh",
			setup: func(ctrl *Controller[string]) {},
		},
		{
			name: "loaded",
			setup: func(ctrl *Controller[string]) {
				_ = ctrl.FetchNextPage(context.Background())
			},
		},
		{
			name: "errored",
			setup: func(ctrl *Controller[string]) {
				_ = ctrl.FetchNextPage(context.Background())
				_ = ctrl.FetchNextPage(context.Background())
			},
		},
		{
			name: "exhausted",
			setup: func(ctrl *Controller[string]) {
				for i := 0; i < 4; i++ {
					_ = ctrl.FetchNextPage(context.Background())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScriptedFetcher().
				on(0, []string{"a"}, nil).
				on(1, nil, errors.New("boom")).
				on(1, []string{"b"}, nil).
				on(2, []string{}, nil)
			ctrl := newTestController(t, f.fetch, 2)
			tt.setup(ctrl)

			for i := 0; i < 2; i++ {
				ctrl.Reset()

				snap := ctrl.Snapshot()
				if len(snap.Items) != 0 {
					t.Errorf("Expected no items, got %v", snap.Items)
				}
				if snap.PagesLoaded != 0 {
					t.Errorf("Expected 0 pages, got %d", snap.PagesLoaded)
				}
				if !snap.HasMore {
					t.Error("Expected HasMore true")
				}
				if snap.Err != nil {
					t.Errorf("Expected nil error, got %v", snap.Err)
				}
				if snap.InFlight {
					t.Error("Expected in-flight false")
				}
			}
		})
	}
}

func TestController_OneNotificationPerMutation(t *testing.T) {
	f := newScriptedFetcher().
		on(0, []string{"a", "b"}, nil).
		on(1, nil, errors.New("boom"))
	ctrl := newTestController(t, f.fetch, 2)
	ctx := context.Background()

	count := 0
	ctrl.Subscribe(func() { count++ })

	steps := []struct {
		name string
		op   func()
	}{
		{"fetch success", func() { _ = ctrl.FetchNextPage(ctx) }},
		{"fetch failure", func() { _ = ctrl.FetchNextPage(ctx) }},
		{"retry", ctrl.Retry},
		{"remove", func() { ctrl.RemoveItem(func(s string) bool { return s == "a" }) }},
		{"reset", ctrl.Reset},
	}

	for i, step := range steps {
		step.op()
		if count != i+1 {
			t.Errorf("After %s: expected %d notifications, got %d", step.name, i+1, count)
		}
	}
}

func TestController_ListenerSeesNewState(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{"a"}, nil)
	ctrl := newTestController(t, f.fetch, 2)

	var seen []string
	ctrl.Subscribe(func() { seen = ctrl.Items() })

	_ = ctrl.FetchNextPage(context.Background())

	if !reflect.DeepEqual(seen, []string{"a"}) {
		t.Errorf("Listener should observe updated items, got %v", seen)
	}
}

func TestController_RemoveItem(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{"a", "b", "a", "c"}, nil)
	ctrl := newTestController(t, f.fetch, 4)
	_ = ctrl.FetchNextPage(context.Background())

	removed := ctrl.RemoveItem(func(s string) bool { return s == "a" })

	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if got := ctrl.Items(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("Items = %v, want [b c]", got)
	}
	if ctrl.PagesLoaded() != 1 {
		t.Errorf("RemoveItem must not change pages loaded, got %d", ctrl.PagesLoaded())
	}
}

func TestController_RemoveItemNilPredicate(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{"a", "b"}, nil)
	ctrl := newTestController(t, f.fetch, 2)
	_ = ctrl.FetchNextPage(context.Background())

	if removed := ctrl.RemoveItem(nil); removed != 0 {
		t.Errorf("Expected nil predicate to remove nothing, got %d", removed)
	}

	done := make(chan int, 1)
	go func() { done <- ctrl.Len() }()
	select {
	case n := <-done:
		if n != 2 {
			t.Errorf("Expected 2 items, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Controller lock not released after RemoveItem(nil)")
	}
}

func TestController_ItemsReturnsCopy(t *testing.T) {
	f := newScriptedFetcher().on(0, []string{"a"}, nil)
	ctrl := newTestController(t, f.fetch, 1)
	_ = ctrl.FetchNextPage(context.Background())

	items := ctrl.Items()
	items[0] = "mutated"

	if item, _ := ctrl.ItemAt(0); item != "a" {
		t.Errorf("Items must return a copy, controller now holds %q", item)
	}
	if _, ok := ctrl.ItemAt(1); ok {
		t.Error("ItemAt out of range should report false")
	}
}

func TestController_PassesContextToFetch(t *testing.T) {
	type ctxKey struct{}
	var got any

	fetch := func(ctx context.Context, page int) ([]string, error) {
		got = ctx.Value(ctxKey{})
		return []string{"a"}, nil
	}
	ctrl := newTestController(t, fetch, 1)

	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	_ = ctrl.FetchNextPage(ctx)

	if got != "marker" {
		t.Errorf("Expected fetch to receive caller context, got %v", got)
	}
}

func TestController_CloseDropsSubscribers(t *testing.T) {
	f := newScriptedFetcher()
	ctrl := newTestController(t, f.fetch, 1)

	called := false
	ctrl.Subscribe(func() { called = true })
	ctrl.Close()
	ctrl.Reset()

	if called {
		t.Error("Listener called after Close")
	}
	if n := ctrl.subs.len(); n != 0 {
		t.Errorf("Expected no subscribers, got %d", n)
	}
}

func TestController_ConcurrentCallersSingleFlight(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, page int) ([]string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []string{"a"}, nil
	}
	ctrl := newTestController(t, fetch, 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.FetchNextPage(context.Background())
		}()
	}
	wg.Wait()

	// Every completed fetch loaded exactly one page, in order.
	if int(calls.Load()) != ctrl.PagesLoaded() {
		t.Errorf("Fetch calls (%d) and pages loaded (%d) diverged", calls.Load(), ctrl.PagesLoaded())
	}
	if ctrl.InFlight() {
		t.Error("Expected no fetch in flight after all callers returned")
	}
}
