// Package observe bundles the optional observability ports (logger, contextual logger, metrics, tracing)
// used by the tracker, the query engine and the storage engines.
//
// Every port is optional: a zero Observer is silent.
package observe

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	AttrOperation  = "operation"
	AttrStatus     = "status"
	AttrErrorType  = "error_type"
	AttrDurationMS = "duration_ms"
	AttrError      = "error"
)

// Observer fans out log records, metrics and spans to the configured ports.
type Observer struct {
	Logger           eventstore.Logger
	ContextualLogger eventstore.ContextualLogger
	Metrics          eventstore.MetricsCollector
	Tracing          eventstore.TracingCollector
}

// Kind describes one kind of observed operation.
type Kind struct {
	Operation      string // value of the "operation" label
	SpanName       string
	DurationMetric string
	ErrorsMetric   string
}

// Operation is one running observed operation.
type Operation struct {
	observer *Observer
	kind     Kind
	ctx      context.Context
	span     eventstore.SpanContext
	started  time.Time
}

// Start opens a span (if tracing is configured) and starts the clock of an operation.
func (o *Observer) Start(ctx context.Context, kind Kind, attrs map[string]string) (*Operation, context.Context) {
	var span eventstore.SpanContext

	if o.Tracing != nil {
		spanAttrs := map[string]string{AttrOperation: kind.Operation}
		for key, value := range attrs {
			spanAttrs[key] = value
		}

		ctx, span = o.Tracing.StartSpan(ctx, kind.SpanName, spanAttrs)
	}

	return &Operation{
		observer: o,
		kind:     kind,
		ctx:      ctx,
		span:     span,
		started:  time.Now(),
	}, ctx
}

// Elapsed returns the time since Start.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.started)
}

// Succeed records the duration with status success and finishes the span.
func (op *Operation) Succeed(attrs map[string]string) {
	duration := op.Elapsed()
	op.observer.recordDuration(op.ctx, op.kind.DurationMetric, duration, op.kind.Operation, StatusSuccess)
	op.finishSpan(StatusSuccess, duration, attrs)
}

// Fail records the duration with status error, increments the error counter and finishes the span.
func (op *Operation) Fail(errorType string) {
	duration := op.Elapsed()
	op.observer.recordDuration(op.ctx, op.kind.DurationMetric, duration, op.kind.Operation, StatusError)
	op.observer.incrementErrors(op.ctx, op.kind.ErrorsMetric, op.kind.Operation, errorType)
	op.finishSpan(StatusError, duration, map[string]string{AttrErrorType: errorType})
}

// RecordValue records a value metric labeled with the operation and status success.
func (op *Operation) RecordValue(metric string, value float64) {
	op.observer.recordValue(op.ctx, metric, value, op.kind.Operation, StatusSuccess)
}

func (op *Operation) finishSpan(status string, duration time.Duration, attrs map[string]string) {
	if op.span == nil || op.observer.Tracing == nil {
		return
	}

	op.span.SetStatus(status)
	op.span.AddAttribute(AttrDurationMS, fmt.Sprintf("%.2f", ToMilliseconds(duration)))
	for key, value := range attrs {
		op.span.AddAttribute(key, value)
	}

	op.observer.Tracing.FinishSpan(op.span, status, attrs)
}

func (o *Observer) recordDuration(ctx context.Context, metric string, duration time.Duration, operation, status string) {
	if o.Metrics == nil || metric == "" {
		return
	}

	labels := map[string]string{AttrOperation: operation, AttrStatus: status}

	if contextual, ok := o.Metrics.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	o.Metrics.RecordDuration(metric, duration, labels)
}

func (o *Observer) recordValue(ctx context.Context, metric string, value float64, operation, status string) {
	if o.Metrics == nil || metric == "" {
		return
	}

	labels := map[string]string{AttrOperation: operation, AttrStatus: status}

	if contextual, ok := o.Metrics.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	o.Metrics.RecordValue(metric, value, labels)
}

func (o *Observer) incrementErrors(ctx context.Context, metric, operation, errorType string) {
	if o.Metrics == nil || metric == "" {
		return
	}

	labels := map[string]string{AttrOperation: operation, AttrStatus: StatusError, AttrErrorType: errorType}

	if contextual, ok := o.Metrics.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	o.Metrics.IncrementCounter(metric, labels)
}

/***** Logging *****/

// Debug logs at debug level. The contextual logger is preferred when both loggers are configured.
func (o *Observer) Debug(ctx context.Context, msg string, args ...any) {
	switch {
	case o.ContextualLogger != nil:
		o.ContextualLogger.DebugContext(ctx, msg, args...)
	case o.Logger != nil:
		o.Logger.Debug(msg, args...)
	}
}

// Info logs at info level.
func (o *Observer) Info(ctx context.Context, msg string, args ...any) {
	switch {
	case o.ContextualLogger != nil:
		o.ContextualLogger.InfoContext(ctx, msg, args...)
	case o.Logger != nil:
		o.Logger.Info(msg, args...)
	}
}

// Warn logs at warn level.
func (o *Observer) Warn(ctx context.Context, msg string, args ...any) {
	switch {
	case o.ContextualLogger != nil:
		o.ContextualLogger.WarnContext(ctx, msg, args...)
	case o.Logger != nil:
		o.Logger.Warn(msg, args...)
	}
}

// Error logs err at error level, prepended as the "error" attribute.
func (o *Observer) Error(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{AttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case o.ContextualLogger != nil:
		o.ContextualLogger.ErrorContext(ctx, msg, allArgs...)
	case o.Logger != nil:
		o.Logger.Error(msg, allArgs...)
	}
}

// ToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func ToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
