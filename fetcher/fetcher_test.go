package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/previewcache/gate"
	"github.com/jonwraymond/previewcache/store"
)

func newTestFetcher(t *testing.T, config Config) *Fetcher {
	t.Helper()

	if config.Timeout == 0 {
		config.Timeout = 500 * time.Millisecond
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Millisecond
	}

	f := New(config)
	t.Cleanup(f.Close)
	return f
}

func staticGenerator(data string) Generator {
	return func(ctx context.Context, recordID, sourceURL string) (string, error) {
		return data, nil
	}
}

func TestFetcher_CacheHit(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "cGF5bG9hZA==", nil
	}

	for i := 0; i < 3; i++ {
		data, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
		if data != "cGF5bG9hZA==" {
			t.Fatalf("Fetch %d returned %q", i, data)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}

	stats := f.Stats()
	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
	if stats.CacheHits != 2 {
		t.Errorf("CacheHits = %d, want 2", stats.CacheHits)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("HitRate = %f, want %f", stats.HitRate, want)
	}
}

func TestFetcher_Coalescing(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		<-release
		return "c2hhcmVk", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)
		}(i)
	}

	// Let every caller reach the registry before the call settles.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("generator called %d times for %d concurrent fetches, want 1", got, n)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if results[i] != "c2hhcmVk" {
			t.Errorf("caller %d got %q, want shared payload", i, results[i])
		}
	}
}

func TestFetcher_CoalescedFailureSharedByAll(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	genErr := errors.New("decoder choked")
	release := make(chan struct{})
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		<-release
		return "", genErr
	}

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen,
				WithMaxRetries(0))
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if !errors.Is(errs[i], genErr) {
			t.Errorf("caller %d got %v, want the shared generator error", i, errs[i])
		}
	}

	// Failures are never cached.
	if got := f.Stats().Size; got != 0 {
		t.Errorf("Size = %d after failed generation, want 0", got)
	}
}

func TestFetcher_RetryCountAndBackoff(t *testing.T) {
	f := newTestFetcher(t, Config{RetryDelay: 20 * time.Millisecond})
	ctx := context.Background()

	var calls atomic.Int32
	genErr := errors.New("always failing")
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "", genErr
	}

	start := time.Now()
	_, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen, WithMaxRetries(3))
	elapsed := time.Since(start)

	if !errors.Is(err, genErr) {
		t.Errorf("Fetch = %v, want terminal generator error", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("generator called %d times, want maxRetries+1 = 4", got)
	}
	// Backoff: 20ms + 40ms + 80ms between the four attempts.
	if min := 140 * time.Millisecond; elapsed < min {
		t.Errorf("elapsed = %v, want >= %v (exponential backoff)", elapsed, min)
	}
}

func TestFetcher_SuccessAfterRetry(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return "ZXZlbnR1YWw=", nil
	}

	data, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if data != "ZXZlbnR1YWw=" {
		t.Errorf("Fetch returned %q", data)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("generator called %d times, want 3", got)
	}
}

func TestFetcher_AttemptTimeout(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		return "bGF0ZQ==", nil
	}

	_, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen,
		WithTimeout(20*time.Millisecond), WithMaxRetries(1))

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Fetch = %v, want ErrTimeout", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2 (timeouts are retried)", got)
	}
}

func TestFetcher_ErrorsNotCached(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("first call fails")
		}
		return "cmVjb3ZlcmVk", nil
	}

	if _, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen, WithMaxRetries(0)); err == nil {
		t.Fatal("first Fetch should fail")
	}

	data, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen, WithMaxRetries(0))
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if data != "cmVjb3ZlcmVk" {
		t.Errorf("second Fetch returned %q", data)
	}
}

func TestFetcher_ConcurrencyBound(t *testing.T) {
	// Scenario: maxConcurrent=2, three distinct keys at once; the third
	// generation starts only after one of the first two settles.
	f := newTestFetcher(t, Config{Gate: gate.Config{MaxConcurrent: 2}})
	ctx := context.Background()

	var active, peak atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		active.Add(-1)
		return "b2s=", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.Fetch(ctx, fmt.Sprintf("rec-%d", i), "https://example.com/a.jpg", gen); err != nil {
				t.Errorf("Fetch %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrent generations = %d, want <= 2", p)
	}
	if got := f.Stats().Size; got != 3 {
		t.Errorf("Size = %d, want 3 (all three eventually generated)", got)
	}
}

func TestFetcher_QueueTimeout(t *testing.T) {
	f := newTestFetcher(t, Config{
		Gate: gate.Config{MaxConcurrent: 1, QueueTimeout: 30 * time.Millisecond},
	})
	ctx := context.Background()

	hold := make(chan struct{})
	slow := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		<-hold
		return "c2xvdw==", nil
	}
	defer close(hold)

	started := make(chan struct{})
	go func() {
		close(started)
		f.Fetch(ctx, "rec-slow", "https://example.com/a.jpg", slow)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	var calls atomic.Int32
	counting := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "bmV2ZXI=", nil
	}

	_, err := f.Fetch(ctx, "rec-queued", "https://example.com/b.jpg", counting)
	if !errors.Is(err, gate.ErrQueueTimeout) {
		t.Errorf("Fetch = %v, want gate.ErrQueueTimeout", err)
	}
	if got := calls.Load(); got != 0 {
		t.Errorf("generator called %d times for a queue-timed-out request, want 0", got)
	}
}

func TestFetcher_FIFOEvictionThroughFetch(t *testing.T) {
	// Scenario: capacity 2; inserting a third key evicts the first.
	f := newTestFetcher(t, Config{Store: store.Config{MaxEntries: 2}})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "ZGF0YQ==", nil
	}

	for _, id := range []string{"k1", "k2", "k3"} {
		if _, err := f.Fetch(ctx, id, "https://example.com/a.jpg", gen); err != nil {
			t.Fatalf("Fetch(%s) failed: %v", id, err)
		}
	}

	if got := f.Stats().Size; got != 2 {
		t.Fatalf("Size = %d, want 2", got)
	}

	// k2 and k3 hit; k1 was evicted and regenerates.
	before := calls.Load()
	f.Fetch(ctx, "k2", "https://example.com/a.jpg", gen)
	f.Fetch(ctx, "k3", "https://example.com/a.jpg", gen)
	if got := calls.Load(); got != before {
		t.Errorf("k2/k3 should hit cache, generator went %d -> %d", before, got)
	}
	f.Fetch(ctx, "k1", "https://example.com/a.jpg", gen)
	if got := calls.Load(); got != before+1 {
		t.Errorf("k1 should have been evicted and regenerated")
	}
}

func TestFetcher_Clear(t *testing.T) {
	f := newTestFetcher(t, Config{
		Gate: gate.Config{MaxConcurrent: 1, QueueTimeout: 5 * time.Second},
	})
	ctx := context.Background()

	// Populate and make some hits.
	gen := staticGenerator("ZGF0YQ==")
	f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)
	f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)

	// Occupy the only slot and queue a second key behind it.
	hold := make(chan struct{})
	slow := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		<-hold
		return "c2xvdw==", nil
	}
	defer close(hold)

	queuedErr := make(chan error, 1)
	go f.Fetch(ctx, "rec-slow", "https://example.com/b.jpg", slow)
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, err := f.Fetch(ctx, "rec-queued", "https://example.com/c.jpg", staticGenerator("eA=="))
		queuedErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	f.Clear()

	stats := f.Stats()
	if stats.Size != 0 || stats.MemoryUsage != 0 || stats.HitRate != 0 ||
		stats.TotalRequests != 0 || stats.CacheHits != 0 {
		t.Errorf("Stats after Clear = %+v, want all zero", stats)
	}

	select {
	case err := <-queuedErr:
		if !errors.Is(err, gate.ErrAbandoned) {
			t.Errorf("queued fetch = %v, want gate.ErrAbandoned", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued fetch not abandoned by Clear")
	}
}

func TestFetcher_ExpiredEntryMissesAndCounts(t *testing.T) {
	f := newTestFetcher(t, Config{
		Store:         store.Config{MaxAge: 30 * time.Millisecond},
		SweepInterval: time.Hour, // expiry via lookup only
	})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "ZnJlc2g=", nil
	}

	f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)
	time.Sleep(60 * time.Millisecond)
	f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", gen)

	if got := calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2 (expired entry regenerates)", got)
	}

	stats := f.Stats()
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	if stats.CacheHits != 0 {
		t.Errorf("CacheHits = %d, want 0 (expired lookups are misses)", stats.CacheHits)
	}
}

func TestFetcher_InvalidArguments(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	if _, err := f.Fetch(ctx, "", "https://example.com/a.jpg", staticGenerator("eA==")); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("empty record ID: err = %v, want store.ErrInvalidKey", err)
	}
	if _, err := f.Fetch(ctx, "rec-1", "", staticGenerator("eA==")); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("empty source URL: err = %v, want store.ErrInvalidKey", err)
	}
	if _, err := f.Fetch(ctx, "rec-1", "https://example.com/a.jpg", nil); !errors.Is(err, ErrNilGenerator) {
		t.Errorf("nil generator: err = %v, want ErrNilGenerator", err)
	}
}

func TestFetcher_FetchAfterClose(t *testing.T) {
	f := New(Config{})
	f.Close()

	_, err := f.Fetch(context.Background(), "rec-1", "https://example.com/a.jpg", staticGenerator("eA=="))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch after Close = %v, want ErrClosed", err)
	}

	// Close is idempotent.
	f.Close()
}

func TestFetcher_DistinctKeysDoNotCoalesce(t *testing.T) {
	f := newTestFetcher(t, Config{})
	ctx := context.Background()

	var calls atomic.Int32
	gen := func(ctx context.Context, recordID, sourceURL string) (string, error) {
		calls.Add(1)
		return "ZA==", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.Fetch(ctx, fmt.Sprintf("rec-%d", i), "https://example.com/a.jpg", gen)
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 4 {
		t.Errorf("generator called %d times for 4 distinct keys, want 4", got)
	}
}
