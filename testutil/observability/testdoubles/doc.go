// Package testdoubles provides spies for the observability ports of the business event store.
//
//   - MetricsCollectorSpy: captures duration, counter and value records
//   - TracingCollectorSpy: captures spans with their start and finish attributes
//   - ContextualLoggerSpy: captures context-aware log calls
//   - LogHandlerSpy: a slog.Handler capturing records, for components that log through *slog.Logger
package testdoubles
