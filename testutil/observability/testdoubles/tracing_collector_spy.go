package testdoubles

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// SpySpanContext is the span handed out by TracingCollectorSpy.
type SpySpanContext struct {
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

// SetStatus implements eventstore.SpanContext.
func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

// AddAttribute implements eventstore.SpanContext.
func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attributes[key] = value
}

// Status returns the last status set on the span.
func (c *SpySpanContext) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Attributes returns a copy of the attributes added to the span.
func (c *SpySpanContext) Attributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.attributes)
}

// SpySpanRecord is one captured span.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
	SpanContext     *SpySpanContext
}

// TracingCollectorSpy is an eventstore.TracingCollector which captures all spans.
type TracingCollectorSpy struct {
	mu          sync.Mutex
	spanRecords []SpySpanRecord
}

// NewTracingCollectorSpy creates an empty TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements eventstore.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spanCtx := &SpySpanContext{attributes: make(map[string]string)}
	s.spanRecords = append(s.spanRecords, SpySpanRecord{
		Name:            name,
		StartAttributes: maps.Clone(attrs),
		SpanContext:     spanCtx,
	})

	return ctx, spanCtx
}

// FinishSpan implements eventstore.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	spySpanCtx, ok := spanCtx.(*SpySpanContext)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.spanRecords {
		if s.spanRecords[i].SpanContext == spySpanCtx {
			s.spanRecords[i].Status = status
			s.spanRecords[i].EndAttributes = maps.Clone(attrs)
			s.spanRecords[i].Finished = true

			return
		}
	}
}

// SpanRecords returns a copy of all captured spans.
func (s *TracingCollectorSpy) SpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.spanRecords)
}

// HasSpanRecordForName starts a fluent chain over the spans with the given name.
func (s *TracingCollectorSpy) HasSpanRecordForName(name string) *SpanRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]SpySpanRecord, 0)
	for _, record := range s.spanRecords {
		if record.Name == name {
			candidates = append(candidates, record)
		}
	}

	return &SpanRecordMatcher{candidates: candidates}
}

// SpanRecordMatcher narrows down a set of spans; Assert reports whether any span is left.
type SpanRecordMatcher struct {
	candidates []SpySpanRecord
}

// WithStatus keeps finished spans with the given status.
func (m *SpanRecordMatcher) WithStatus(status string) *SpanRecordMatcher {
	m.candidates = slices.DeleteFunc(m.candidates, func(record SpySpanRecord) bool {
		return !record.Finished || record.Status != status
	})

	return m
}

// WithStartAttribute keeps spans started with the given attribute.
func (m *SpanRecordMatcher) WithStartAttribute(key, value string) *SpanRecordMatcher {
	m.candidates = slices.DeleteFunc(m.candidates, func(record SpySpanRecord) bool {
		return record.StartAttributes[key] != value
	})

	return m
}

// WithSpanAttribute keeps spans which had the given attribute added while running.
func (m *SpanRecordMatcher) WithSpanAttribute(key, value string) *SpanRecordMatcher {
	m.candidates = slices.DeleteFunc(m.candidates, func(record SpySpanRecord) bool {
		return record.SpanContext.Attributes()[key] != value
	})

	return m
}

// Assert returns true if at least one span met all conditions of the chain.
func (m *SpanRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

// Ensure TracingCollectorSpy implements the tracing port.
var _ eventstore.TracingCollector = (*TracingCollectorSpy)(nil)
