package oteladapters

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const (
	descriptionDuration = "Duration of a business event store operation"
	descriptionCounter  = "Number of business event store operations, typically failed ones"
	descriptionValue    = "Distribution of a business event store value, like metadata rows per event or results per query"
)

// MetricsCollector implements eventstore.MetricsCollector using the OpenTelemetry metrics API.
// Instruments are created on first use and cached by metric name:
//   - RecordDuration -> Float64Histogram in seconds
//   - IncrementCounter -> Int64Counter
//   - RecordValue -> Float64Histogram
//
// Instrument creation errors are reported to the global otel error handler, the measurement is dropped.
type MetricsCollector struct {
	meter      metric.Meter
	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// NewMetricsCollector creates a new OpenTelemetry metrics collector.
// A nil meter yields a collector which records nothing.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(InstrumentationName)
	}

	return &MetricsCollector{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
	}
}

// RecordDuration implements eventstore.MetricsCollector.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	m.RecordDurationContext(context.Background(), metricName, duration, labels)
}

// RecordDurationContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) RecordDurationContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	histogram := m.histogram(metricName, metric.WithDescription(descriptionDuration), metric.WithUnit("s"))
	if histogram == nil {
		return
	}

	histogram.Record(ctx, duration.Seconds(), metric.WithAttributes(attributesOf(labels)...))
}

// IncrementCounter implements eventstore.MetricsCollector.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	m.IncrementCounterContext(context.Background(), metricName, labels)
}

// IncrementCounterContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) IncrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	counter := m.counter(metricName)
	if counter == nil {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(attributesOf(labels)...))
}

// RecordValue implements eventstore.MetricsCollector.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	m.RecordValueContext(context.Background(), metricName, value, labels)
}

// RecordValueContext implements eventstore.ContextualMetricsCollector.
func (m *MetricsCollector) RecordValueContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	histogram := m.histogram(metricName, metric.WithDescription(descriptionValue))
	if histogram == nil {
		return
	}

	histogram.Record(ctx, value, metric.WithAttributes(attributesOf(labels)...))
}

func (m *MetricsCollector) histogram(name string, options ...metric.Float64HistogramOption) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}

	histogram, err := m.meter.Float64Histogram(name, options...)
	if err != nil {
		otel.Handle(err)
		return nil
	}

	m.histograms[name] = histogram

	return histogram
}

func (m *MetricsCollector) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[name]; exists {
		return counter
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription(descriptionCounter))
	if err != nil {
		otel.Handle(err)
		return nil
	}

	m.counters[name] = counter

	return counter
}

func attributesOf(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}

// Ensure MetricsCollector implements the metrics ports.
var (
	_ eventstore.MetricsCollector           = (*MetricsCollector)(nil)
	_ eventstore.ContextualMetricsCollector = (*MetricsCollector)(nil)
)
