// Package ratelimit gates page requests on the upstream error budget.
// It follows the X-ESI-Error-Limit-Remain and X-ESI-Error-Limit-Reset
// response headers and shares the resulting state through Redis so that
// every pager talking to the same API backs off together.
package ratelimit

import (
	"fmt"
	"time"
)

// Response headers carrying the error budget.
const (
	HeaderErrorLimitRemain = "X-ESI-Error-Limit-Remain"
	HeaderErrorLimitReset  = "X-ESI-Error-Limit-Reset"
)

// Thresholds for rate limit decisions.
const (
	// ErrorThresholdCritical blocks all requests when errors remaining falls below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning applies throttling when errors remaining falls below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy indicates normal operation.
	ErrorThresholdHealthy = 50
)

// stateKeys are the Redis keys holding one scope's state.
type stateKeys struct {
	errorsRemaining string
	resetAt         string
	lastUpdate      string
}

func keysFor(scope string) stateKeys {
	prefix := fmt.Sprintf("pager:ratelimit:%s:", scope)
	return stateKeys{
		errorsRemaining: prefix + "errors_remaining",
		resetAt:         prefix + "reset_at",
		lastUpdate:      prefix + "last_update",
	}
}

// State is the error budget as last reported by the upstream API.
type State struct {
	// ErrorsRemaining is the number of errors allowed before the API blocks requests.
	ErrorsRemaining int `json:"errors_remaining"`

	// ResetAt is when the error window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when ErrorsRemaining >= ErrorThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the error window resets, or 0.
func (s *State) TimeUntilReset() time.Duration {
	if d := time.Until(s.ResetAt); d > 0 {
		return d
	}
	return 0
}

// WindowExpired returns true once ResetAt has passed. The recorded
// budget no longer applies then.
func (s *State) WindowExpired() bool {
	return !s.ResetAt.IsZero() && time.Now().After(s.ResetAt)
}

// UpdateHealth recomputes IsHealthy from ErrorsRemaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.ErrorsRemaining >= ErrorThresholdHealthy
}
