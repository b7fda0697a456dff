package gate

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Config configures the gate.
type Config struct {
	// MaxConcurrent is the maximum number of simultaneously admitted
	// callers.
	// Default: 12
	MaxConcurrent int

	// QueueTimeout is the maximum time a caller may wait in the queue
	// for a slot.
	// Default: 45 seconds
	QueueTimeout time.Duration
}

// waiter is one queued caller. err is assigned before done is closed,
// always under the gate mutex, so readers of err after <-done need no
// further synchronization.
type waiter struct {
	enqueuedAt time.Time
	done       chan struct{}
	err        error
}

// Gate bounds the number of concurrently admitted callers.
type Gate struct {
	config Config

	mu        sync.Mutex
	active    int
	maxActive int
	timedOut  int64
	abandoned int64
	queue     *list.List // *waiter, front = longest waiting
}

// New creates a gate with the given configuration.
func New(config Config) *Gate {
	// Apply defaults
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 12
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 45 * time.Second
	}

	return &Gate{
		config: config,
		queue:  list.New(),
	}
}

// Acquire obtains an admission slot, blocking in FIFO order when all
// slots are taken. Returns ErrQueueTimeout if the wait exceeds the
// configured queue timeout, ErrAbandoned if the gate is reset while
// waiting, or the context error if ctx is done first.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.active < g.config.MaxConcurrent {
		g.admitLocked()
		g.mu.Unlock()
		return nil
	}

	w := &waiter{
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
	el := g.queue.PushBack(w)
	g.mu.Unlock()

	timer := time.NewTimer(g.config.QueueTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.err
	case <-timer.C:
		return g.leave(el, w, ErrQueueTimeout)
	case <-ctx.Done():
		return g.leave(el, w, ctx.Err())
	}
}

// Release returns a slot and hands freed capacity to queued callers in
// FIFO order. Waiters already past their queue timeout are rejected,
// not run.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.active > 0 {
		g.active--
	}
	g.drainLocked()
	g.mu.Unlock()
}

// Reset rejects every queued caller with ErrAbandoned and zeroes the
// active count. Callers currently admitted are unaffected; their later
// Release calls are absorbed.
func (g *Gate) Reset() {
	g.mu.Lock()
	for el := g.queue.Front(); el != nil; el = el.Next() {
		w := el.Value.(*waiter)
		w.err = ErrAbandoned
		g.abandoned++
		close(w.done)
	}
	g.queue.Init()
	g.active = 0
	g.mu.Unlock()
}

// Metrics returns current gate statistics.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Metrics{
		Active:        g.active,
		MaxActive:     g.maxActive,
		Queued:        g.queue.Len(),
		MaxConcurrent: g.config.MaxConcurrent,
		TimedOut:      g.timedOut,
		Abandoned:     g.abandoned,
	}
}

// Metrics contains gate statistics.
type Metrics struct {
	Active        int
	MaxActive     int
	Queued        int
	MaxConcurrent int
	TimedOut      int64
	Abandoned     int64
}

// leave removes a waiter that gave up on its own (queue timeout or
// context). If the waiter was settled concurrently, the settled outcome
// wins: a granted slot must be used, not leaked.
func (g *Gate) leave(el *list.Element, w *waiter, err error) error {
	g.mu.Lock()
	select {
	case <-w.done:
		g.mu.Unlock()
		return w.err
	default:
	}
	g.queue.Remove(el)
	if err == ErrQueueTimeout {
		g.timedOut++
	}
	g.mu.Unlock()
	return err
}

func (g *Gate) admitLocked() {
	g.active++
	if g.active > g.maxActive {
		g.maxActive = g.active
	}
}

// drainLocked grants freed slots to waiters in queue order. An expired
// waiter at the front is rejected and the scan continues, so one stale
// entry never blocks fresher ones behind it.
func (g *Gate) drainLocked() {
	for g.active < g.config.MaxConcurrent && g.queue.Len() > 0 {
		el := g.queue.Front()
		w := el.Value.(*waiter)
		g.queue.Remove(el)

		if time.Since(w.enqueuedAt) > g.config.QueueTimeout {
			w.err = ErrQueueTimeout
			g.timedOut++
			close(w.done)
			continue
		}

		g.admitLocked()
		close(w.done)
	}
}
