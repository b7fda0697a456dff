package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/previewcache/gate"
	"github.com/jonwraymond/previewcache/observe"
	"github.com/jonwraymond/previewcache/store"
)

// Generator produces a base64-encoded thumbnail for a record.
//
// Contract:
// - Idempotency: repeated calls for the same (recordID, sourceURL) must
//   be safe; coalescing and retries assume it.
// - Errors: a failing generator must return, not hang. A generation
//   that outlives its attempt timeout keeps running but its result is
//   discarded.
type Generator func(ctx context.Context, recordID, sourceURL string) (string, error)

// Config configures the fetcher.
type Config struct {
	// Store configures the bounded thumbnail store.
	Store store.Config

	// Gate configures the admission gate.
	Gate gate.Config

	// SweepInterval is how often expired entries are swept out.
	// Default: 5 minutes
	SweepInterval time.Duration

	// Timeout is the per-attempt generation timeout.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base backoff delay; the delay before attempt
	// n+1 is RetryDelay doubled n times.
	// Default: 1 second
	RetryDelay time.Duration

	// Observer supplies logging, metrics, and tracing.
	// Default: a noop observer
	Observer observe.Observer
}

// call is one in-flight generation. data and err are assigned before
// done is closed; every coalesced caller reads the same settlement.
type call struct {
	done chan struct{}
	data string
	err  error
}

// Fetcher serves decoded preview thumbnails from a bounded cache,
// coalescing and rate-limiting calls to the generator.
type Fetcher struct {
	config  Config
	store   *store.Store
	gate    *gate.Gate
	sweeper *store.Sweeper
	obs     observe.Observer

	mu            sync.Mutex
	inflight      map[store.Key]*call
	totalRequests int64
	cacheHits     int64
	closed        bool
}

// New creates a fetcher and starts its background sweeper. Call Close
// to stop it.
func New(config Config) *Fetcher {
	// Apply defaults
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.Observer == nil {
		config.Observer = observe.NewNoopObserver()
	}

	f := &Fetcher{
		config:   config,
		obs:      config.Observer,
		inflight: make(map[store.Key]*call),
	}

	storeCfg := config.Store
	userEvict := storeCfg.OnEvict
	storeCfg.OnEvict = func(key store.Key) {
		f.obs.Metrics().RecordEviction(context.Background())
		if userEvict != nil {
			userEvict(key)
		}
	}
	f.store = store.New(storeCfg)
	f.gate = gate.New(config.Gate)

	f.sweeper = store.NewSweeper(f.store, store.SweeperConfig{
		Interval: config.SweepInterval,
		OnSweep: func(removed int) {
			if removed > 0 {
				f.obs.Logger().Debug(context.Background(), "swept expired thumbnails",
					observe.Field{Key: "removed", Value: removed})
			}
		},
	})
	f.sweeper.Start()

	return f
}

// Fetch returns the thumbnail for a record, generating and caching it
// on a miss. Concurrent fetches for the same key share one generator
// call and settle together. Per-call options override the configured
// timeout, retry count, and backoff base.
//
// A caller whose ctx is done stops waiting, but the underlying
// generation continues and still settles every other caller.
func (f *Fetcher) Fetch(ctx context.Context, recordID, sourceURL string, gen Generator, opts ...CallOption) (string, error) {
	key := store.NewKey(recordID, sourceURL)
	if err := key.Validate(); err != nil {
		return "", err
	}
	if gen == nil {
		return "", ErrNilGenerator
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", ErrClosed
	}
	f.totalRequests++
	f.mu.Unlock()

	if data, ok := f.store.Get(key); ok {
		f.mu.Lock()
		f.cacheHits++
		f.mu.Unlock()
		f.obs.Metrics().RecordLookup(ctx, true)
		return data, nil
	}
	f.obs.Metrics().RecordLookup(ctx, false)

	f.mu.Lock()
	if c, ok := f.inflight[key]; ok {
		f.mu.Unlock()
		return c.wait(ctx)
	}
	c := &call{done: make(chan struct{})}
	f.inflight[key] = c
	f.mu.Unlock()

	// The generation must not be cancelled by whichever caller happened
	// to start it; detach from ctx but keep its values for tracing.
	go f.run(context.WithoutCancel(ctx), key, gen, c, f.newCallOptions(opts))

	return c.wait(ctx)
}

// run carries one admitted-or-queued generation to settlement.
func (f *Fetcher) run(ctx context.Context, key store.Key, gen Generator, c *call, o callOptions) {
	ctx, span := f.obs.Tracer().StartSpan(ctx, key.RecordID)

	enqueuedAt := time.Now()
	err := f.gate.Acquire(ctx)
	f.obs.Metrics().RecordQueueWait(ctx, time.Since(enqueuedAt), err == nil)
	if err != nil {
		// Queue timeout or reset: the generator was never called, so
		// there is nothing to retry.
		f.obs.Logger().Warn(ctx, "thumbnail request left admission queue",
			observe.Field{Key: "record.id", Value: key.RecordID},
			observe.Field{Key: "error", Value: err.Error()})
		f.obs.Tracer().EndSpan(span, err)
		f.settle(key, c, "", err)
		return
	}

	started := time.Now()
	data, err := f.executeWithRetry(ctx, key, gen, o)
	f.obs.Metrics().RecordGeneration(ctx, time.Since(started), err)

	if err == nil {
		f.store.Put(key, data)
	} else {
		f.obs.Logger().Error(ctx, "thumbnail generation failed",
			observe.Field{Key: "record.id", Value: key.RecordID},
			observe.Field{Key: "error", Value: err.Error()})
	}

	// Releasing the slot drains the wait queue; that is the only path
	// by which queued requests ever run.
	f.gate.Release()
	f.obs.Tracer().EndSpan(span, err)
	f.settle(key, c, data, err)
}

// settle resolves a call for every coalesced waiter and retires its
// in-flight registration. After a Clear the registry no longer holds
// this call; only a still-registered identical call is removed.
func (f *Fetcher) settle(key store.Key, c *call, data string, err error) {
	f.mu.Lock()
	if cur, ok := f.inflight[key]; ok && cur == c {
		delete(f.inflight, key)
	}
	f.mu.Unlock()

	c.data = data
	c.err = err
	close(c.done)
}

func (c *call) wait(ctx context.Context) (string, error) {
	select {
	case <-c.done:
		return c.data, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Clear removes every cached entry, abandons all queued and in-flight
// registrations, and zeroes the counters. Generations already admitted
// run to completion but their results land in the emptied cache.
func (f *Fetcher) Clear() {
	f.mu.Lock()
	f.inflight = make(map[store.Key]*call)
	f.totalRequests = 0
	f.cacheHits = 0
	f.mu.Unlock()

	f.store.Clear()
	f.gate.Reset()
}

// Close stops the background sweeper and rejects queued work. Fetch
// calls after Close return ErrClosed.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.sweeper.Stop()
	f.gate.Reset()
}

// GateMetrics returns a snapshot of the admission gate counters.
func (f *Fetcher) GateMetrics() gate.Metrics {
	return f.gate.Metrics()
}
