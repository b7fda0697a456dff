package store

import (
	"sync"
	"time"
)

// SweeperConfig configures the background sweeper.
type SweeperConfig struct {
	// Interval between sweeps.
	// Default: 5 minutes
	Interval time.Duration

	// OnSweep, if set, is called after each sweep with the number of
	// entries removed.
	OnSweep func(removed int)
}

// Sweeper periodically removes expired entries from a Store. Sweeps run
// whether or not the store is otherwise active.
type Sweeper struct {
	store  *Store
	config SweeperConfig

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper creates a sweeper for the given store.
func NewSweeper(store *Store, config SweeperConfig) *Sweeper {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}

	return &Sweeper{
		store:  store,
		config: config,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (w *Sweeper) Start() {
	w.startOnce.Do(func() {
		w.started = true
		go w.run()
	})
}

// Stop terminates the sweep loop and waits for it to exit. Idempotent
// and safe to call even if Start was never called.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started {
		<-w.done
	}
}

func (w *Sweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := w.store.Sweep()
			if w.config.OnSweep != nil {
				w.config.OnSweep(removed)
			}
		case <-w.stop:
			return
		}
	}
}
