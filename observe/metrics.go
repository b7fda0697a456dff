package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records preview cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records one fetch request and whether it was served
	// from cache.
	RecordLookup(ctx context.Context, hit bool)

	// RecordGeneration records one completed generation (the full
	// retry chain) with its duration and terminal error, if any.
	RecordGeneration(ctx context.Context, duration time.Duration, err error)

	// RecordQueueWait records how long a caller waited for an
	// admission slot before being admitted or rejected.
	RecordQueueWait(ctx context.Context, wait time.Duration, admitted bool)

	// RecordEviction records one entry removed by capacity pressure or
	// expiry.
	RecordEviction(ctx context.Context)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	lookupCount  metric.Int64Counter
	hitCount     metric.Int64Counter
	genCount     metric.Int64Counter
	genErrors    metric.Int64Counter
	genDuration  metric.Float64Histogram
	queueWait    metric.Float64Histogram
	evictedCount metric.Int64Counter
}

// NewMetrics creates a Metrics instance backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookupCount, err := meter.Int64Counter(
		"preview.fetch.total",
		metric.WithDescription("Total number of thumbnail fetch requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	hitCount, err := meter.Int64Counter(
		"preview.cache.hits",
		metric.WithDescription("Fetch requests served from cache"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	genCount, err := meter.Int64Counter(
		"preview.generate.total",
		metric.WithDescription("Completed thumbnail generations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	genErrors, err := meter.Int64Counter(
		"preview.generate.errors",
		metric.WithDescription("Thumbnail generations that failed after all retries"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	genDuration, err := meter.Float64Histogram(
		"preview.generate.duration_ms",
		metric.WithDescription("Thumbnail generation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queueWait, err := meter.Float64Histogram(
		"preview.queue.wait_ms",
		metric.WithDescription("Time spent waiting for an admission slot in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evictedCount, err := meter.Int64Counter(
		"preview.cache.evictions",
		metric.WithDescription("Cached thumbnails removed by capacity pressure or expiry"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookupCount:  lookupCount,
		hitCount:     hitCount,
		genCount:     genCount,
		genErrors:    genErrors,
		genDuration:  genDuration,
		queueWait:    queueWait,
		evictedCount: evictedCount,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, hit bool) {
	m.lookupCount.Add(ctx, 1)
	if hit {
		m.hitCount.Add(ctx, 1)
	}
}

func (m *metricsImpl) RecordGeneration(ctx context.Context, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.Bool("error", err != nil))

	m.genCount.Add(ctx, 1, opt)
	if err != nil {
		m.genErrors.Add(ctx, 1)
	}
	m.genDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordQueueWait(ctx context.Context, wait time.Duration, admitted bool) {
	m.queueWait.Record(ctx, float64(wait.Milliseconds()),
		metric.WithAttributes(attribute.Bool("admitted", admitted)))
}

func (m *metricsImpl) RecordEviction(ctx context.Context) {
	m.evictedCount.Add(ctx, 1)
}

// noopMetrics records nothing.
type noopMetrics struct{}

func (noopMetrics) RecordLookup(ctx context.Context, hit bool)                              {}
func (noopMetrics) RecordGeneration(ctx context.Context, duration time.Duration, err error) {}
func (noopMetrics) RecordQueueWait(ctx context.Context, wait time.Duration, admitted bool)  {}
func (noopMetrics) RecordEviction(ctx context.Context)                                      {}

// NewNoopMetrics returns a Metrics implementation that records nothing.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

// Ensure both implementations satisfy Metrics
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = noopMetrics{}
)
