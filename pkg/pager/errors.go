package pager

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageSize is returned when a PageFunc yields more items than the configured page size.
	ErrInvalidPageSize = errors.New("page exceeds configured page size")

	// ErrNilFetch is returned by New when no PageFunc is given.
	ErrNilFetch = errors.New("page fetch function is required")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("invalid pager config")
)

// InvalidPageSizeError describes a page that broke the PageFunc contract.
type InvalidPageSizeError struct {
	Page int
	Got  int
	Max  int
}

// Error implements the error interface.
func (e *InvalidPageSizeError) Error() string {
	return fmt.Sprintf("page %d returned %d items (page size %d)", e.Page, e.Got, e.Max)
}

// Unwrap allows errors.Is(err, ErrInvalidPageSize).
func (e *InvalidPageSizeError) Unwrap() error {
	return ErrInvalidPageSize
}
