package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	attrErrorType = "error_type"
	attrStatus    = "eventstore.status"
)

// TracingCollector implements eventstore.TracingCollector using the OpenTelemetry tracing API.
// Spans are started as children of the span in the given context, so tracker, query and storage
// spans of one request form a single trace.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a new OpenTelemetry tracing collector.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan implements eventstore.TracingCollector.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	spanCtx, span := t.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attributesOf(attrs)...),
	)

	return spanCtx, &SpanContext{span: span}
}

// FinishSpan implements eventstore.TracingCollector.
// The status "success" maps to codes.Ok, "error" to codes.Error described by the error_type attribute.
func (t *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*SpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(attributesOf(attrs)...)
	otelSpanCtx.setStatus(status, attrs[attrErrorType])
	otelSpanCtx.span.End()
}

// SpanContext implements eventstore.SpanContext by wrapping an OpenTelemetry span.
type SpanContext struct {
	span trace.Span
}

// Span returns the wrapped OpenTelemetry span.
func (s *SpanContext) Span() trace.Span {
	return s.span
}

// SetStatus implements eventstore.SpanContext.
func (s *SpanContext) SetStatus(status string) {
	s.setStatus(status, "")
}

// AddAttribute implements eventstore.SpanContext.
func (s *SpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s *SpanContext) setStatus(status, errorType string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		description := "operation failed"
		if errorType != "" {
			description += ": " + errorType
		}

		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetAttributes(attribute.String(attrStatus, status))
	}
}

// Ensure the tracing ports are implemented.
var (
	_ eventstore.TracingCollector = (*TracingCollector)(nil)
	_ eventstore.SpanContext      = (*SpanContext)(nil)
)
