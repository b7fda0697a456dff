package fetcher

import "errors"

// Sentinel errors for fetch operations.
var (
	// ErrTimeout is returned when a single generation attempt exceeds
	// its timeout.
	ErrTimeout = errors.New("fetcher: generation attempt timed out")

	// ErrNilGenerator is returned when Fetch is called without a
	// generator.
	ErrNilGenerator = errors.New("fetcher: generator is nil")

	// ErrClosed is returned by operations on a closed fetcher.
	ErrClosed = errors.New("fetcher: fetcher is closed")
)
