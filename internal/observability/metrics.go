package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the filter instruments.
type Metrics struct {
	parseCount    metric.Int64Counter
	parseErrors   metric.Int64Counter
	parseDuration metric.Float64Histogram
	cacheHits     metric.Int64Counter
	queryDuration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.parseCount, err = meter.Int64Counter("condfilter.parse.count",
		metric.WithDescription("Number of filter definitions parsed")); err != nil {
		return nil, err
	}
	if m.parseErrors, err = meter.Int64Counter("condfilter.parse.errors",
		metric.WithDescription("Number of filter definitions rejected")); err != nil {
		return nil, err
	}
	if m.parseDuration, err = meter.Float64Histogram("condfilter.parse.duration",
		metric.WithDescription("Time spent parsing filter definitions"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter("condfilter.cache.hits",
		metric.WithDescription("Number of parses served from the cache")); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram("condfilter.query.duration",
		metric.WithDescription("Time spent running filtered queries"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordParse records one parse and its outcome.
func (m *Metrics) RecordParse(ctx context.Context, elapsed time.Duration, err error) {
	m.parseCount.Add(ctx, 1)
	if err != nil {
		m.parseErrors.Add(ctx, 1)
	}
	m.parseDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond))
}

// RecordCacheHit records a parse served from the cache.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	m.cacheHits.Add(ctx, 1)
}

// RecordQuery records a filtered query against entity.
func (m *Metrics) RecordQuery(ctx context.Context, entity string, elapsed time.Duration) {
	m.queryDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("entity", entity)))
}
