package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	errorsRemainingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pager_errors_remaining",
		Help: "Number of errors remaining in the current upstream error window",
	}, []string{"scope"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_rate_limit_blocks_total",
		Help: "Total number of page requests blocked due to critical error limit",
	}, []string{"scope"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_rate_limit_throttles_total",
		Help: "Total number of page requests throttled due to warning error limit",
	}, []string{"scope"})
)

// Config holds tracker configuration.
type Config struct {
	// Scope separates independent error budgets in Redis (usually one per API host).
	Scope string

	// ThrottleDelay is how long Allow waits in the warning zone.
	ThrottleDelay time.Duration

	// DefaultRemaining is assumed until the API has reported a value.
	DefaultRemaining int
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		Scope:            "default",
		ThrottleDelay:    1 * time.Second,
		DefaultRemaining: 100,
	}
}

// Tracker monitors the upstream error budget and gates requests.
type Tracker struct {
	redis  *redis.Client
	config Config
	keys   stateKeys
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Tracker {
	defaults := DefaultConfig()
	if cfg.Scope == "" {
		cfg.Scope = defaults.Scope
	}
	if cfg.ThrottleDelay < 0 {
		cfg.ThrottleDelay = 0
	}
	if cfg.DefaultRemaining <= 0 {
		cfg.DefaultRemaining = defaults.DefaultRemaining
	}

	return &Tracker{
		redis:  redisClient,
		config: cfg,
		keys:   keysFor(cfg.Scope),
		logger: logger.With().Str("scope", cfg.Scope).Logger(),
	}
}

// GetState retrieves the current state from Redis.
// Returns a default healthy state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	vals, err := t.redis.MGet(ctx, t.keys.errorsRemaining, t.keys.resetAt, t.keys.lastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if vals[0] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return t.defaultState(), nil
	}

	remaining, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return nil, fmt.Errorf("parse errors remaining: %w", err)
	}

	state := &State{ErrorsRemaining: remaining}

	if vals[1] != nil {
		resetUnix, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse reset timestamp: %w", err)
		}
		state.ResetAt = time.Unix(resetUnix, 0)
	}

	if vals[2] != nil {
		lastUpdate, err := time.Parse(time.RFC3339Nano, fmt.Sprint(vals[2]))
		if err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
		state.LastUpdate = lastUpdate
	}

	if state.WindowExpired() {
		t.logger.Debug().
			Int("errors_remaining", state.ErrorsRemaining).
			Time("reset_at", state.ResetAt).
			Msg("Error window has reset, returning default healthy state")
		return t.defaultState(), nil
	}

	state.UpdateHealth()
	return state, nil
}

func (t *Tracker) defaultState() *State {
	now := time.Now()
	state := &State{
		ErrorsRemaining: t.config.DefaultRemaining,
		ResetAt:         now.Add(60 * time.Second),
		LastUpdate:      now,
	}
	state.UpdateHealth()
	return state
}

// UpdateFromHeaders parses the error limit headers and stores the new state.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderErrorLimitRemain)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderErrorLimitRemain, err)
	}

	resetStr := headers.Get(HeaderErrorLimitReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderErrorLimitReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderErrorLimitReset, err)
	}

	now := time.Now()
	state := &State{
		ErrorsRemaining: remain,
		ResetAt:         now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:      now,
	}
	state.UpdateHealth()

	// the state lives until the error window resets
	ttl := time.Until(state.ResetAt)
	if ttl < time.Second {
		ttl = time.Second
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.keys.errorsRemaining, remain, ttl)
	pipe.Set(ctx, t.keys.resetAt, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, t.keys.lastUpdate, now.Format(time.RFC3339Nano), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	errorsRemainingGauge.WithLabelValues(t.config.Scope).Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("errors_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Error limit CRITICAL - page requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("errors_remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Error limit WARNING - page requests will be throttled")
	default:
		t.logger.Debug().
			Int("errors_remaining", remain).
			Bool("is_healthy", state.IsHealthy).
			Msg("Error limit state updated")
	}

	return nil
}

// Allow reports whether a request may be sent now. In the warning zone it
// waits ThrottleDelay first; in the critical zone it returns false.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Error limit critical - blocking page request")

		rateLimitBlocksTotal.WithLabelValues(t.config.Scope).Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("delay", t.config.ThrottleDelay).
			Msg("Error limit warning - throttling page request")

		rateLimitThrottlesTotal.WithLabelValues(t.config.Scope).Inc()

		timer := time.NewTimer(t.config.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Clear removes the stored state for this scope.
func (t *Tracker) Clear(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.keys.errorsRemaining, t.keys.resetAt, t.keys.lastUpdate).Err(); err != nil {
		return fmt.Errorf("clear rate limit state: %w", err)
	}
	return nil
}
