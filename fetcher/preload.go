package fetcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/previewcache/observe"
)

// Record identifies one item to preload.
type Record struct {
	ID          string
	UploadedURL string
}

// PreloadConfig configures a preload pass.
type PreloadConfig struct {
	// BatchSize is the number of records fetched concurrently per
	// batch.
	// Default: 3
	BatchSize int

	// BatchDelay is the pause between batches. The delay throttles
	// preloading on top of the admission gate so a bulk warm-up cannot
	// saturate the gate and starve interactive fetches.
	// Default: 300 milliseconds
	BatchDelay time.Duration

	// OnProgress, if set, is called after each batch with the number
	// of records attempted so far and the total.
	OnProgress func(done, total int)
}

// PreloadMany warms the cache for the given records in throttled
// batches. Individual fetch failures are logged and suppressed; a bad
// record never aborts the batch or the pass. The only returned error
// is ctx's, when cancelled between batches.
func (f *Fetcher) PreloadMany(ctx context.Context, records []Record, gen Generator, config PreloadConfig, opts ...CallOption) error {
	// Apply defaults
	if config.BatchSize <= 0 {
		config.BatchSize = 3
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = 300 * time.Millisecond
	}

	total := len(records)
	done := 0

	for start := 0; start < total; start += config.BatchSize {
		end := start + config.BatchSize
		if end > total {
			end = total
		}

		var g errgroup.Group
		for _, rec := range records[start:end] {
			rec := rec
			g.Go(func() error {
				if _, err := f.Fetch(ctx, rec.ID, rec.UploadedURL, gen, opts...); err != nil {
					f.obs.Logger().Warn(ctx, "thumbnail preload failed",
						observe.Field{Key: "record.id", Value: rec.ID},
						observe.Field{Key: "error", Value: err.Error()})
				}
				return nil
			})
		}
		_ = g.Wait() // every member returns nil; failures are suppressed above

		done = end
		if config.OnProgress != nil {
			config.OnProgress(done, total)
		}

		if end < total {
			select {
			case <-time.After(config.BatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}
