// Package source turns ESI-style paginated HTTP endpoints into page
// fetch functions for pager.Controller.
//
// ESI pages are 1-based and addressed with ?page=N; the total is
// announced in the X-Pages response header. Source maps the pager's
// zero-based page index k to ?page=k+1, remembers X-Pages per endpoint
// and answers requests past the last page with an empty page without
// touching the network.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/esi-pager/pkg/pager"
	"github.com/Sternrassler/esi-pager/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page requests.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_source_requests_total",
		Help: "Total page requests by endpoint and status",
	}, []string{"endpoint", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_source_request_duration_seconds",
		Help:    "Page request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	sourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_source_errors_total",
		Help: "Total page request errors by class",
	}, []string{"class"})

	sourceSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_source_skipped_total",
		Help: "Page requests answered locally because they were past X-Pages",
	}, []string{"endpoint"})
)

// HeaderPages carries the total page count of an endpoint.
const HeaderPages = "X-Pages"

// Config holds the source configuration.
type Config struct {
	// BaseURL is prepended to every endpoint (e.g. "https://esi.evetech.net").
	BaseURL string

	// UserAgent header (required by ESI).
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// HTTPClient is used for requests (default: 30s timeout client).
	HTTPClient *http.Client

	// Retry controls retries of server, rate limit and network errors.
	Retry RetryConfig

	// Limiter gates requests on the upstream error budget (optional).
	Limiter *ratelimit.Tracker
}

// DefaultConfig returns a default source configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:    baseURL,
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Retry:      DefaultRetryConfig(),
	}
}

// Source fetches pages of T from JSON array endpoints.
type Source[T any] struct {
	config Config
	http   *http.Client
	logger zerolog.Logger

	mu     sync.Mutex
	totals map[string]int
}

// New creates a new source.
func New[T any](cfg Config) (*Source[T], error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Retry = cfg.Retry.normalize()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Source[T]{
		config: cfg,
		http:   httpClient,
		logger: log.With().Str("component", "source").Logger(),
		totals: make(map[string]int),
	}, nil
}

// Pages returns a page fetch function for endpoint. query is sent with
// every request; its "page" parameter is managed by the source.
func (s *Source[T]) Pages(endpoint string, query url.Values) pager.PageFunc[T] {
	q := cloneQuery(query)
	return func(ctx context.Context, page int) ([]T, error) {
		return s.FetchPage(ctx, endpoint, q, page)
	}
}

// TotalPages returns the last X-Pages value seen for endpoint and query.
func (s *Source[T]) TotalPages(endpoint string, query url.Values) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, ok := s.totals[totalsKey(endpoint, query)]
	return total, ok
}

// FetchPage fetches the zero-based page of endpoint.
func (s *Source[T]) FetchPage(ctx context.Context, endpoint string, query url.Values, page int) ([]T, error) {
	if page < 0 {
		return nil, fmt.Errorf("negative page index %d", page)
	}

	key := totalsKey(endpoint, query)
	if total, ok := s.TotalPages(endpoint, query); ok && page >= total {
		sourceSkippedTotal.WithLabelValues(endpoint).Inc()
		s.logger.Debug().
			Str("endpoint", endpoint).
			Int("page", page).
			Int("total_pages", total).
			Msg("Page past X-Pages, returning empty page")
		return []T{}, nil
	}

	if s.config.Limiter != nil {
		allowed, err := s.config.Limiter.Allow(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			sourceRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	var items []T
	err := retryWithBackoff(ctx, s.config.Retry, s.logger.With().Str("endpoint", endpoint).Int("page", page).Logger(), func() error {
		var attemptErr error
		items, attemptErr = s.do(ctx, endpoint, query, page, key)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// do performs a single request for page.
func (s *Source[T]) do(ctx context.Context, endpoint string, query url.Values, page int, key string) ([]T, error) {
	q := cloneQuery(query)
	q.Set("page", strconv.Itoa(page+1))
	target := s.config.BaseURL + endpoint + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &SourceError{Endpoint: endpoint, Page: page, Class: ErrorClassClient, Err: err}
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.http.Do(req)
	sourceRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		sourceRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &SourceError{Endpoint: endpoint, Page: page, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if s.config.Limiter != nil {
		if err := s.config.Limiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update error limit from headers")
		}
	}

	if resp.StatusCode == http.StatusNotFound && page > 0 {
		// ESI answers 404 for pages past the end
		io.Copy(io.Discard, resp.Body)
		return []T{}, nil
	}

	if class := classifyStatus(resp.StatusCode); class != "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		sourceErrorsTotal.WithLabelValues(string(class)).Inc()
		s.logger.Warn().
			Str("endpoint", endpoint).
			Int("page", page).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Page request error")
		return nil, &SourceError{
			Endpoint:   endpoint,
			Page:       page,
			StatusCode: resp.StatusCode,
			Class:      class,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	if pagesStr := resp.Header.Get(HeaderPages); pagesStr != "" {
		if total, err := strconv.Atoi(pagesStr); err == nil && total >= 0 {
			s.mu.Lock()
			s.totals[key] = total
			s.mu.Unlock()
		}
	}

	var items []T
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		sourceErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &SourceError{Endpoint: endpoint, Page: page, StatusCode: resp.StatusCode, Class: ErrorClassDecode, Err: err}
	}

	s.logger.Debug().
		Str("endpoint", endpoint).
		Int("page", page).
		Int("items", len(items)).
		Msg("Page fetched")

	return items, nil
}

// Forget drops the remembered X-Pages for endpoint so the next request
// goes to the network. Call it when the pager is reset.
func (s *Source[T]) Forget(endpoint string, query url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.totals, totalsKey(endpoint, query))
}

func totalsKey(endpoint string, query url.Values) string {
	q := cloneQuery(query)
	q.Del("page")
	return endpoint + "?" + q.Encode()
}

func cloneQuery(query url.Values) url.Values {
	q := make(url.Values, len(query))
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	return q
}
