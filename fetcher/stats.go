package fetcher

// Stats is a point-in-time view of cache effectiveness. The counters
// are lifetime totals, reset only by Clear; Size and MemoryUsage
// describe the store's current contents.
type Stats struct {
	Size          int
	MemoryUsage   int64
	HitRate       float64
	TotalRequests int64
	CacheHits     int64
}

// Stats returns current cache statistics. HitRate is 0 when no
// requests have been made.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	total := f.totalRequests
	hits := f.cacheHits
	f.mu.Unlock()

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:          f.store.Len(),
		MemoryUsage:   f.store.MemoryUsage(),
		HitRate:       hitRate,
		TotalRequests: total,
		CacheHits:     hits,
	}
}
