package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/esi-pager/pkg/cache"
	"github.com/Sternrassler/esi-pager/pkg/logging"
	"github.com/Sternrassler/esi-pager/pkg/metrics"
	"github.com/Sternrassler/esi-pager/pkg/pager"
	"github.com/Sternrassler/esi-pager/pkg/ratelimit"
	"github.com/Sternrassler/esi-pager/pkg/source"
	"github.com/Sternrassler/esi-pager/pkg/view"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// row is one line of the /rows response.
type row struct {
	Index int             `json:"index"`
	Kind  string          `json:"kind"`
	Item  json.RawMessage `json:"item,omitempty"`
	Error string          `json:"error,omitempty"`
}

// stateResponse is the /state, /retry and /reset response body.
type stateResponse struct {
	Source       string `json:"source"`
	State        string `json:"state"`
	Items        int    `json:"items"`
	PagesLoaded  int    `json:"pages_loaded"`
	HasMore      bool   `json:"has_more"`
	InFlight     bool   `json:"in_flight"`
	NoItemsFound bool   `json:"no_items_found"`
	Error        string `json:"error,omitempty"`
	TotalPages   *int   `json:"total_pages,omitempty"`
}

// service exposes one paged endpoint as a virtualized row window.
type service struct {
	redis    *redis.Client
	endpoint string
	query    url.Values
	src      *source.Source[json.RawMessage]
	pages    *cache.Pages[json.RawMessage]
	ctrl     *pager.Controller[json.RawMessage]
	view     *view.Adapter[json.RawMessage, row]
	logger   zerolog.Logger
}

// newService wires source -> cache -> controller -> adapter. Fetches
// started by the adapter run with ctx.
func newService(ctx context.Context, cfg config, redisClient *redis.Client) (*service, error) {
	base, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	limiter := ratelimit.NewTracker(redisClient, ratelimit.Config{Scope: base.Host}, logging.NewLogger("ratelimit"))

	srcCfg := source.DefaultConfig(cfg.baseURL, cfg.userAgent)
	srcCfg.Limiter = limiter
	src, err := source.New[json.RawMessage](srcCfg)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	pages, err := cache.NewPages(cache.NewManager(redisClient), src.Pages(cfg.endpoint, cfg.query), cache.PagesConfig{
		Source: cfg.endpoint,
		Query:  cfg.query,
		TTL:    cfg.cacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}

	ctrl, err := pager.New[json.RawMessage](pages.Fetch, pager.Config{PageSize: cfg.pageSize, Name: cfg.endpoint})
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	s := &service{
		redis:    redisClient,
		endpoint: cfg.endpoint,
		query:    cfg.query,
		src:      src,
		pages:    pages,
		ctrl:     ctrl,
		logger:   logging.NewLogger("service").With().Str("endpoint", cfg.endpoint).Logger(),
	}

	adapter, err := view.New(ctx, ctrl, s.renderers(), view.WithOnFault(func(err error) {
		s.logger.Error().Err(err).Msg("Upstream returned an oversized page")
	}))
	if err != nil {
		return nil, fmt.Errorf("create view adapter: %w", err)
	}
	s.view = adapter

	go s.watch(ctx)

	return s, nil
}

func (s *service) renderers() view.Renderers[json.RawMessage, row] {
	return view.Renderers[json.RawMessage, row]{
		Item: func(item json.RawMessage, index int) row {
			return row{Index: index, Kind: view.RowItem.String(), Item: item}
		},
		Loading: func() row {
			return row{Kind: view.RowLoading.String()}
		},
		Error: func(err error) row {
			return row{Kind: view.RowError.String(), Error: err.Error()}
		},
		Retry: func(retry func()) row {
			r := row{Kind: view.RowRetry.String()}
			if err := s.ctrl.Err(); err != nil {
				r.Error = err.Error()
			}
			return r
		},
		Empty: func() row {
			return row{Kind: view.RowEmpty.String()}
		},
		End: func() row {
			return row{Kind: view.RowEnd.String()}
		},
	}
}

// watch logs every state change until ctx is done or the view is closed.
func (s *service) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.view.Updates():
			if !ok {
				return
			}
			st := s.ctrl.Status()
			s.logger.Debug().
				Str("state", st.State().String()).
				Int("items", st.Len).
				Int("pages_loaded", st.PagesLoaded).
				Msg("Pager state changed")
		}
	}
}

// warm prefetches the first n pages into the cache.
func (s *service) warm(ctx context.Context, n int) {
	res, err := s.pages.Warm(ctx, n, cache.DefaultWarmConfig())
	if err != nil {
		s.logger.Warn().Err(err).Int("warmed", res.Warmed).Int("failed", res.Failed).Msg("Cache warm incomplete")
	}
}

// Close detaches the adapter and waits for its fetches.
func (s *service) Close() {
	s.view.Close()
	s.view.Wait()
	s.ctrl.Close()
}

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(s.redis))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/rows", s.rowsHandler)
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/retry", s.retryHandler)
	mux.HandleFunc("/reset", s.resetHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// rowsHandler renders rows [from, to) as JSON lines. With wait=true it
// waits for a fetch started by the window and renders it again.
func (s *service) rowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	from, err := intParam(q, "from", 0)
	if err != nil || from < 0 {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := intParam(q, "to", s.view.ItemCount())
	if err != nil || to < from {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}

	rows := s.window(from, to)
	if wait, _ := strconv.ParseBool(q.Get("wait")); wait {
		s.view.Wait()
		rows = s.window(from, to)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, rw := range rows {
		if err := enc.Encode(rw); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write row")
			return
		}
	}
}

func (s *service) window(from, to int) []row {
	rows := s.view.Window(from, to)
	for i := range rows {
		rows[i].Index = from + i
	}
	return rows
}

func (s *service) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeState(w)
}

func (s *service) retryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.ctrl.Retry()
	s.writeState(w)
}

// resetHandler restarts the list from page 0. With invalidate=true the
// cached pages are dropped as well.
func (s *service) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if invalidate, _ := strconv.ParseBool(r.URL.Query().Get("invalidate")); invalidate {
		if _, err := s.pages.Invalidate(r.Context()); err != nil {
			http.Error(w, "invalidate cache: "+err.Error(), http.StatusBadGateway)
			return
		}
	}
	s.src.Forget(s.endpoint, s.query)
	s.ctrl.Reset()
	s.writeState(w)
}

func (s *service) writeState(w http.ResponseWriter) {
	st := s.ctrl.Status()
	resp := stateResponse{
		Source:       s.ctrl.Name(),
		State:        st.State().String(),
		Items:        st.Len,
		PagesLoaded:  st.PagesLoaded,
		HasMore:      st.HasMore,
		InFlight:     st.InFlight,
		NoItemsFound: st.NoItemsFound(),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if total, ok := s.src.TotalPages(s.endpoint, s.query); ok {
		resp.TotalPages = &total
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write state")
	}
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
