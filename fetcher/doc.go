// Package fetcher coordinates thumbnail fetches against a bounded
// store and an expensive, unreliable generator.
//
// A fetch first consults the store. On a miss, concurrent requests for
// the same key are coalesced onto a single generator call; the call is
// admitted through a concurrency gate (waiting in FIFO order when the
// gate is full) and executed with a per-attempt timeout and bounded
// exponential-backoff retries. A successful payload is cached; a
// terminal failure is reported identically to every coalesced caller.
//
// PreloadMany warms the cache in small throttled batches so a bulk
// preload cannot monopolize the admission gate and starve interactive
// fetches.
package fetcher
