// Package observability wires OpenTelemetry tracing, metrics and Server-Timing
// into filter parsing, rendering and persistence.
package observability

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName identifies the library in telemetry when no name is configured.
	DefaultServiceName  = "condfilter"
	instrumentationName = "github.com/nlstn/go-condfilter"
)

// Config holds the observability providers and the instruments built from them.
type Config struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	serviceName       string
	serviceVersion    string
	logger            *slog.Logger
	detailedDBTracing bool
	serverTiming      bool

	tracer  *Tracer
	metrics *Metrics
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.meterProvider = mp }
}

// WithServiceName sets the service name reported in span attributes.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the service version reported in span attributes.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithLogger sets the logger used to report instrumentation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithDetailedDBTracing enables a span per database statement.
func WithDetailedDBTracing() Option {
	return func(c *Config) { c.detailedDBTracing = true }
}

// WithServerTiming enables Server-Timing metrics.
func WithServerTiming() Option {
	return func(c *Config) { c.serverTiming = true }
}

// NewConfig creates a configuration. Missing providers fall back to no-op implementations.
func NewConfig(opts ...Option) *Config {
	c := &Config{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = tracenoop.NewTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = metricnoop.NewMeterProvider()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize creates the tracer and metric instruments.
func (c *Config) Initialize() error {
	c.tracer = newTracer(c.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(c.serviceVersion)), c.serviceName)
	metrics, err := newMetrics(c.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(c.serviceVersion)))
	if err != nil {
		return err
	}
	c.metrics = metrics
	return nil
}

// Tracer returns the filter tracer. A nil or uninitialized Config yields a no-op tracer.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return newTracer(tracenoop.NewTracerProvider().Tracer(instrumentationName), DefaultServiceName)
	}
	return c.tracer
}

// Metrics returns the filter metrics. A nil or uninitialized Config yields no-op instruments.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		m, _ := newMetrics(metricnoop.NewMeterProvider().Meter(instrumentationName))
		return m
	}
	return c.metrics
}

// SetLogger replaces the logger. A nil config or logger is ignored.
func (c *Config) SetLogger(logger *slog.Logger) {
	if c == nil || logger == nil {
		return
	}
	c.logger = logger
}

// Logger returns the configured logger.
func (c *Config) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// DetailedDBTracing reports whether per-statement spans are enabled.
func (c *Config) DetailedDBTracing() bool {
	return c != nil && c.detailedDBTracing
}

// ServerTimingEnabled reports whether Server-Timing metrics are enabled.
func (c *Config) ServerTimingEnabled() bool {
	return c != nil && c.serverTiming
}
