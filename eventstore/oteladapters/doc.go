// Package oteladapters provides OpenTelemetry implementations of the business event store's observability ports.
//
//   - MetricsCollector: eventstore.MetricsCollector and eventstore.ContextualMetricsCollector on an otel Meter
//   - TracingCollector: eventstore.TracingCollector on an otel Tracer
//   - SlogBridgeLogger: eventstore.Logger and eventstore.ContextualLogger on the otelslog bridge, with trace correlation
//   - OTelLogger: eventstore.ContextualLogger on the otel logs API
//
// Usage:
//
//	collector := oteladapters.NewMetricsCollector(meterProvider.Meter(oteladapters.InstrumentationName))
//	tracing := oteladapters.NewTracingCollector(tracerProvider.Tracer(oteladapters.InstrumentationName))
//	logger := oteladapters.NewSlogBridgeLogger(oteladapters.InstrumentationName)
//
//	eventTracker, _ := tracker.NewEventTracker(
//		registry, validator, transactions,
//		tracker.WithMetrics(collector),
//		tracker.WithTracing(tracing),
//		tracker.WithContextualLogger(logger),
//	)
package oteladapters

// InstrumentationName is the name of the instrumentation scope for meters, tracers and loggers.
const InstrumentationName = "github.com/AntonStoeckl/business-eventstore-go"
