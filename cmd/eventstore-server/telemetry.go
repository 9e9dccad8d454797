package main

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/mongoengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/business-eventstore-go/internal/config"
)

// telemetry holds the observability ports handed to the storage engines, the tracker and the query engine.
// Without OTEL_ENABLED the ports stay nil and only the plain logger is used.
type telemetry struct {
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metrics          eventstore.MetricsCollector
	tracing          eventstore.TracingCollector
	shutdown         func(ctx context.Context) error
}

func newTelemetry(cfg *config.Config, logger *slog.Logger) (*telemetry, error) {
	t := &telemetry{
		logger:   logger,
		shutdown: func(context.Context) error { return nil },
	}

	if !cfg.OTelEnabled {
		return t, nil
	}

	tracerProvider := sdktrace.NewTracerProvider()
	meterProvider := sdkmetric.NewMeterProvider()

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	t.metrics = oteladapters.NewMetricsCollector(meterProvider.Meter(oteladapters.InstrumentationName))
	t.tracing = oteladapters.NewTracingCollector(tracerProvider.Tracer(oteladapters.InstrumentationName))
	t.contextualLogger = oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())
	t.shutdown = func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}

	logger.Info("opentelemetry enabled", "instrumentation", oteladapters.InstrumentationName)

	return t, nil
}

func (t *telemetry) postgresOptions() []postgresengine.Option {
	return []postgresengine.Option{
		postgresengine.WithLogger(t.logger),
		postgresengine.WithContextualLogger(t.contextualLogger),
		postgresengine.WithMetrics(t.metrics),
		postgresengine.WithTracing(t.tracing),
	}
}

func (t *telemetry) mongoOptions() []mongoengine.Option {
	return []mongoengine.Option{
		mongoengine.WithLogger(t.logger),
		mongoengine.WithContextualLogger(t.contextualLogger),
		mongoengine.WithMetrics(t.metrics),
		mongoengine.WithTracing(t.tracing),
	}
}
