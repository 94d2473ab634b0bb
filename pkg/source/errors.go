package source

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the source.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when the error limit tracker blocks a request.
	ErrRateLimited = errors.New("request blocked: error limit critical")
)

// ErrorClass represents a classification of page request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 420, 429 and 520 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that is not a JSON array of items.
	ErrorClassDecode ErrorClass = "decode"
)

// SourceError describes a failed page request.
type SourceError struct {
	Endpoint   string
	Page       int
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s page %d: %s error (status %d): %v", e.Endpoint, e.Page, e.Class, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s page %d: %s error (status %d)", e.Endpoint, e.Page, e.Class, e.StatusCode)
	}
	return fmt.Sprintf("%s page %d: %s error: %v", e.Endpoint, e.Page, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to an ErrorClass.
// It returns "" for non-error statuses.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 420 || status == http.StatusTooManyRequests || status == 520:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// client and decode errors will not change on retry
		return false
	}
}

// classOf extracts the ErrorClass of err, or "" if err is not a *SourceError.
func classOf(err error) ErrorClass {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Class
	}
	return ""
}
