package fetcher

import (
	"context"
	"time"

	"github.com/jonwraymond/previewcache/observe"
	"github.com/jonwraymond/previewcache/store"
)

// executeWithRetry runs the generator up to maxRetries+1 times,
// doubling the backoff delay after each failure. Timeouts and generator
// errors are retried identically; the last error is the terminal one.
func (f *Fetcher) executeWithRetry(ctx context.Context, key store.Key, gen Generator, o callOptions) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		data, err := f.attempt(ctx, key, gen, o.timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt >= o.maxRetries {
			break
		}

		f.obs.Logger().Debug(ctx, "thumbnail generation attempt failed",
			observe.Field{Key: "record.id", Value: key.RecordID},
			observe.Field{Key: "attempt", Value: attempt + 1},
			observe.Field{Key: "error", Value: err.Error()})

		delay := o.retryDelay << attempt
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", lastErr
}

// attempt races one generator call against the per-attempt timeout.
// The generator cannot be aborted; a losing call keeps running and its
// eventual result is discarded.
func (f *Fetcher) attempt(ctx context.Context, key store.Key, gen Generator, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		data, err := gen(attemptCtx, key.RecordID, key.SourceURL)
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrTimeout
	}
}
