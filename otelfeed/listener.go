package otelfeed

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mongofeed/go-mongofeed/message"
	"github.com/mongofeed/go-mongofeed/subscription"
)

// InstrumentedListener wraps a subscription.Listener to export
// telemetry data for every delivered message.
//
// Use InstrumentListener to create a new instance.
type InstrumentedListener[S, T any] struct {
	name     string
	listener subscription.Listener[S, T]
	tracer   trace.Tracer

	count    metric.Int64Counter
	duration metric.Int64Histogram
}

// InstrumentListener wraps the provided listener with OpenTelemetry
// instrumentation. The name is used in both traces and metrics to
// identify the subscription.
//
// An error is returned if metrics could not be registered.
func InstrumentListener[S, T any](
	name string,
	listener subscription.Listener[S, T],
	opts ...Option,
) (*InstrumentedListener[S, T], error) {
	cfg := newConfig(opts...)

	il := &InstrumentedListener[S, T]{
		name:     name,
		listener: listener,
		tracer:   cfg.tracer(),
	}

	if err := il.registerMetrics(cfg.meter()); err != nil {
		return nil, err
	}

	return il, nil
}

func (il *InstrumentedListener[S, T]) registerMetrics(meter metric.Meter) error {
	var err error

	if il.count, err = meter.Int64Counter(
		"mongofeed.listener.messages.count",
		metric.WithDescription("Count of messages delivered to the listener."),
	); err != nil {
		return fmt.Errorf("otelfeed.InstrumentedListener: failed to register metric: %w", err)
	}

	if il.duration, err = meter.Int64Histogram(
		"mongofeed.listener.duration.milliseconds",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration in milliseconds of listener invocations."),
	); err != nil {
		return fmt.Errorf("otelfeed.InstrumentedListener: failed to register metric: %w", err)
	}

	return nil
}

// OnMessage delegates to the wrapped listener, recording invocation
// count, duration and a span per message.
func (il *InstrumentedListener[S, T]) OnMessage(ctx context.Context, msg message.Message[S, T]) error {
	props := msg.Properties()

	attributes := []attribute.KeyValue{
		ListenerNameAttribute.String(il.name),
		DatabaseNameAttribute.String(props.DatabaseName),
		CollectionNameAttribute.String(props.CollectionName),
	}

	ctx, span := il.tracer.Start(ctx, "subscription.Listener.OnMessage",
		trace.WithAttributes(attributes...),
	)
	defer span.End()

	start := time.Now()
	err := il.listener.OnMessage(ctx, msg)

	if err != nil {
		span.RecordError(err)
		attributes = append(attributes, ErrorAttribute.Bool(true))
	}

	il.count.Add(ctx, 1, metric.WithAttributes(attributes...))
	il.duration.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributes(attributes...))

	return err
}
