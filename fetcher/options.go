package fetcher

import "time"

// callOptions carries the per-call retry and timeout settings. Values
// start at the fetcher's configured defaults and individual options
// override them.
type callOptions struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// CallOption overrides a retry or timeout setting for a single Fetch
// call.
type CallOption func(*callOptions)

// WithTimeout sets the per-attempt generation timeout for this call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries sets the number of retries after the initial attempt
// for this call. Zero disables retries.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base backoff delay for this call. The delay
// before attempt n+1 is the base delay doubled n times.
func WithRetryDelay(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

func (f *Fetcher) newCallOptions(opts []CallOption) callOptions {
	o := callOptions{
		timeout:    f.config.Timeout,
		maxRetries: f.config.MaxRetries,
		retryDelay: f.config.RetryDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
