package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/previewcache/fetcher"
	"github.com/jonwraymond/previewcache/gate"
)

// StatsSource provides the statistics the cache checker consumes. A
// *fetcher.Fetcher satisfies it.
type StatsSource interface {
	Stats() fetcher.Stats
	GateMetrics() gate.Metrics
}

// CacheCheckerConfig configures the cache health checker.
type CacheCheckerConfig struct {
	// MaxMemoryBytes is the store's configured memory limit, used to
	// compute the saturation ratio. Zero disables the memory check.
	MaxMemoryBytes int64

	// MemoryWarning is the saturation ratio that triggers degraded
	// status. Default: 0.9
	MemoryWarning float64

	// QueueDepthWarning is the number of queued admission waiters that
	// triggers degraded status. Default: 8
	QueueDepthWarning int
}

// CacheChecker reports degraded status when the store nears its memory
// limit or the admission queue backs up.
type CacheChecker struct {
	source StatsSource
	config CacheCheckerConfig
}

// NewCacheChecker creates a cache health checker.
func NewCacheChecker(source StatsSource, config CacheCheckerConfig) *CacheChecker {
	if config.MemoryWarning <= 0 || config.MemoryWarning >= 1 {
		config.MemoryWarning = 0.9
	}
	if config.QueueDepthWarning <= 0 {
		config.QueueDepthWarning = 8
	}

	return &CacheChecker{source: source, config: config}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string {
	return "preview-cache"
}

// Check performs the health check.
func (c *CacheChecker) Check(ctx context.Context) Result {
	stats := c.source.Stats()
	gm := c.source.GateMetrics()

	details := map[string]any{
		"entries":        stats.Size,
		"memory_bytes":   stats.MemoryUsage,
		"hit_rate":       stats.HitRate,
		"total_requests": stats.TotalRequests,
		"queue_depth":    gm.Queued,
		"active":         gm.Active,
		"queue_timeouts": gm.TimedOut,
	}

	if gm.Queued >= c.config.QueueDepthWarning {
		return Degraded(fmt.Sprintf("admission queue depth %d", gm.Queued)).
			WithDetails(details)
	}

	if c.config.MaxMemoryBytes > 0 {
		ratio := float64(stats.MemoryUsage) / float64(c.config.MaxMemoryBytes)
		details["memory_ratio"] = ratio
		if ratio >= c.config.MemoryWarning {
			return Degraded(fmt.Sprintf("cache memory at %.0f%% of limit", ratio*100)).
				WithDetails(details)
		}
	}

	return Healthy("cache within limits").WithDetails(details)
}

// Ensure CacheChecker implements Checker
var _ Checker = (*CacheChecker)(nil)
