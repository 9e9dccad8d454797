package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/oteladapters"
)

func givenMetricsCollector(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewMetricsCollector(provider.Meter(oteladapters.InstrumentationName)), reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Metrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	require.Failf(t, "metric not found", "metric %q was not collected", name)

	return metricdata.Metrics{}
}

func Test_MetricsCollector_RecordDuration_RecordsSecondsHistogram(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	// act
	collector.RecordDuration(
		"eventstore_storage_duration_seconds",
		150*time.Millisecond,
		map[string]string{"operation": "append_event", "status": "success"},
	)

	// assert
	m := collectMetric(t, reader, "eventstore_storage_duration_seconds")
	assert.Equal(t, "s", m.Unit)

	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	point := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), point.Count)
	assert.InDelta(t, 0.15, point.Sum, 0.0001)

	operation, found := point.Attributes.Value(attribute.Key("operation"))
	assert.True(t, found)
	assert.Equal(t, "append_event", operation.AsString())
}

func Test_MetricsCollector_IncrementCounter_When_CalledTwice(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)
	labels := map[string]string{"operation": "track_event", "status": "error", "error_type": "validation"}

	// act
	collector.IncrementCounter("eventstore_track_event_errors_total", labels)
	collector.IncrementCounterContext(context.Background(), "eventstore_track_event_errors_total", labels)

	// assert
	m := collectMetric(t, reader, "eventstore_track_event_errors_total")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	errorType, found := sum.DataPoints[0].Attributes.Value(attribute.Key("error_type"))
	assert.True(t, found)
	assert.Equal(t, "validation", errorType.AsString())
}

func Test_MetricsCollector_RecordValue_RecordsDistribution(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)
	labels := map[string]string{"operation": "track_event", "status": "success"}

	// act
	collector.RecordValue("eventstore_metadata_rows_extracted", 3, labels)
	collector.RecordValue("eventstore_metadata_rows_extracted", 5, labels)

	// assert
	m := collectMetric(t, reader, "eventstore_metadata_rows_extracted")

	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(2), histogram.DataPoints[0].Count)
	assert.InDelta(t, 8.0, histogram.DataPoints[0].Sum, 0.0001)
}

func Test_MetricsCollector_When_LabelsDiffer(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)

	// act
	collector.IncrementCounter("eventstore_storage_errors_total", map[string]string{"error_type": "database"})
	collector.IncrementCounter("eventstore_storage_errors_total", map[string]string{"error_type": "duplicate"})

	// assert
	m := collectMetric(t, reader, "eventstore_storage_errors_total")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, sum.DataPoints, 2)
}

func Test_MetricsCollector_When_MeterIsNil(t *testing.T) {
	// setup
	collector := oteladapters.NewMetricsCollector(nil)

	// act + assert
	assert.NotPanics(t, func() {
		collector.RecordDuration("eventstore_query_duration_seconds", time.Second, nil)
		collector.IncrementCounter("eventstore_query_errors_total", nil)
		collector.RecordValue("eventstore_query_results", 1, nil)
	})
}

func Test_MetricsCollector_When_UsedConcurrently(t *testing.T) {
	// setup
	collector, reader := givenMetricsCollector(t)
	done := make(chan struct{})

	// act
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			collector.IncrementCounter("eventstore_concurrent_total", map[string]string{"operation": "read_events"})
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	// assert
	m := collectMetric(t, reader, "eventstore_concurrent_total")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(10), sum.DataPoints[0].Value)
}
