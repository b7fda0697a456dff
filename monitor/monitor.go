package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/previewcache/fetcher"
	"github.com/jonwraymond/previewcache/observe"
)

// CleanupFunc asks the backend to prune its thumbnail cache and
// returns the number of files it removed. The count is informational
// only; it has no effect on the local cache.
type CleanupFunc func(ctx context.Context) (int, error)

// Config configures the monitor.
type Config struct {
	// PollInterval is how often cache statistics are snapshotted.
	// Default: 5 seconds
	PollInterval time.Duration

	// CleanupInterval is how often Cleanup is triggered.
	// Default: 10 minutes
	CleanupInterval time.Duration

	// Cleanup, if set, is called on every cleanup interval.
	Cleanup CleanupFunc

	// Observer supplies logging.
	// Default: a noop observer
	Observer observe.Observer
}

// Monitor polls a fetcher for statistics and tracks preload state.
type Monitor struct {
	fetcher *fetcher.Fetcher
	config  Config
	obs     observe.Observer

	mu           sync.Mutex
	stats        fetcher.Stats
	preloading   bool
	preloadDone  int
	preloadTotal int

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a monitor for the given fetcher.
func New(f *fetcher.Fetcher, config Config) *Monitor {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.Observer == nil {
		config.Observer = observe.NewNoopObserver()
	}

	return &Monitor{
		fetcher: f,
		config:  config,
		obs:     config.Observer,
		stats:   f.Stats(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the polling loop. Subsequent calls are no-ops.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.started = true
		go m.run()
	})
}

// Stop terminates the polling loop and waits for it to exit.
// Idempotent and safe without a prior Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	if m.started {
		<-m.done
	}
}

// Stats returns the most recently polled statistics snapshot.
func (m *Monitor) Stats() fetcher.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// IsPreloading reports whether a Preload pass is in progress.
func (m *Monitor) IsPreloading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preloading
}

// PreloadProgress returns the percentage of the current (or last)
// preload pass that has completed, in [0, 100].
func (m *Monitor) PreloadProgress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.preloadTotal == 0 {
		return 0
	}
	return float64(m.preloadDone) / float64(m.preloadTotal) * 100
}

// Preload runs a preload pass through the fetcher while tracking its
// progress for IsPreloading and PreloadProgress. Any OnProgress hook in
// config still fires.
func (m *Monitor) Preload(ctx context.Context, records []fetcher.Record, gen fetcher.Generator, config fetcher.PreloadConfig, opts ...fetcher.CallOption) error {
	m.mu.Lock()
	m.preloading = true
	m.preloadDone = 0
	m.preloadTotal = len(records)
	m.mu.Unlock()

	caller := config.OnProgress
	config.OnProgress = func(done, total int) {
		m.mu.Lock()
		m.preloadDone = done
		m.preloadTotal = total
		m.mu.Unlock()
		if caller != nil {
			caller(done, total)
		}
	}

	err := m.fetcher.PreloadMany(ctx, records, gen, config, opts...)

	m.mu.Lock()
	m.preloading = false
	m.mu.Unlock()
	return err
}

func (m *Monitor) run() {
	defer close(m.done)

	poll := time.NewTicker(m.config.PollInterval)
	defer poll.Stop()

	cleanup := time.NewTicker(m.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-poll.C:
			stats := m.fetcher.Stats()
			m.mu.Lock()
			m.stats = stats
			m.mu.Unlock()

		case <-cleanup.C:
			m.runCleanup()

		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) runCleanup() {
	if m.config.Cleanup == nil {
		return
	}

	ctx := context.Background()
	removed, err := m.config.Cleanup(ctx)
	if err != nil {
		m.obs.Logger().Warn(ctx, "backend cache cleanup failed",
			observe.Field{Key: "error", Value: err.Error()})
		return
	}
	m.obs.Logger().Info(ctx, "backend cache cleanup completed",
		observe.Field{Key: "files_removed", Value: removed})
}
