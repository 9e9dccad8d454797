package testdoubles

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// MetricsCollectorSpy is a ContextualMetricsCollector which captures all calls.
type MetricsCollectorSpy struct {
	mu              sync.Mutex
	durationRecords []SpyMetricRecord
	counterRecords  []SpyMetricRecord
	valueRecords    []SpyMetricRecord
}

// SpyMetricRecord is one captured metric call. Duration is set for duration records, Value for value records.
type SpyMetricRecord struct {
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

// NewMetricsCollectorSpy creates an empty MetricsCollectorSpy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

// RecordDuration implements eventstore.MetricsCollector.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.durationRecords = append(s.durationRecords, SpyMetricRecord{Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

// IncrementCounter implements eventstore.MetricsCollector.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counterRecords = append(s.counterRecords, SpyMetricRecord{Metric: metric, Labels: maps.Clone(labels)})
}

// RecordValue implements eventstore.MetricsCollector.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.valueRecords = append(s.valueRecords, SpyMetricRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// The context variants delegate, so the spy is exercised through the contextual code path.

func (s *MetricsCollectorSpy) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	s.RecordDuration(metric, duration, labels)
}

func (s *MetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.IncrementCounter(metric, labels)
}

func (s *MetricsCollectorSpy) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	s.RecordValue(metric, value, labels)
}

// DurationRecords returns a copy of the captured duration records.
func (s *MetricsCollectorSpy) DurationRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.durationRecords)
}

// ValueRecords returns a copy of the captured value records.
func (s *MetricsCollectorSpy) ValueRecords() []SpyMetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.valueRecords)
}

// Reset clears all captured records.
func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.durationRecords = nil
	s.counterRecords = nil
	s.valueRecords = nil
}

// HasDurationRecordForMetric starts a fluent chain over the duration records of metric.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(s.durationRecords, metric)
}

// HasCounterRecordForMetric starts a fluent chain over the counter records of metric.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(s.counterRecords, metric)
}

// HasValueRecordForMetric starts a fluent chain over the value records of metric.
func (s *MetricsCollectorSpy) HasValueRecordForMetric(metric string) *MetricRecordMatcher {
	return s.matcher(s.valueRecords, metric)
}

func (s *MetricsCollectorSpy) matcher(records []SpyMetricRecord, metric string) *MetricRecordMatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]SpyMetricRecord, 0)
	for _, record := range records {
		if record.Metric == metric {
			candidates = append(candidates, record)
		}
	}

	return &MetricRecordMatcher{candidates: candidates}
}

// MetricRecordMatcher narrows down a set of records; Assert reports whether any record is left.
type MetricRecordMatcher struct {
	candidates []SpyMetricRecord
}

// WithOperation keeps records with the given operation label.
func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	return m.WithLabel("operation", operation)
}

// WithStatus keeps records with the given status label.
func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	return m.WithLabel("status", status)
}

// WithErrorType keeps records with the given error_type label.
func (m *MetricRecordMatcher) WithErrorType(errorType string) *MetricRecordMatcher {
	return m.WithLabel("error_type", errorType)
}

// WithLabel keeps records with the given label value.
func (m *MetricRecordMatcher) WithLabel(key, value string) *MetricRecordMatcher {
	m.candidates = slices.DeleteFunc(m.candidates, func(record SpyMetricRecord) bool {
		return record.Labels[key] != value
	})

	return m
}

// Assert returns true if at least one record met all conditions of the chain.
func (m *MetricRecordMatcher) Assert() bool {
	return len(m.candidates) > 0
}

// Ensure MetricsCollectorSpy implements the contextual collector port.
var _ eventstore.ContextualMetricsCollector = (*MetricsCollectorSpy)(nil)
