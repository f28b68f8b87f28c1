// Package otelfeed provides OpenTelemetry instrumentation, in the form
// of metrics and traces, for subscription listeners.
package otelfeed

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/mongofeed/go-mongofeed/otelfeed"

type config struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func (c config) meter() metric.Meter {
	return c.meterProvider.Meter(instrumentationName)
}

func (c config) tracer() trace.Tracer {
	return c.tracerProvider.Tracer(instrumentationName)
}

// Option configures the instrumentation wrappers of this package.
type Option func(*config)

// WithMeterProvider overrides the global MeterProvider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithTracerProvider overrides the global TracerProvider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

func newConfig(opts ...Option) config {
	cfg := config{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
