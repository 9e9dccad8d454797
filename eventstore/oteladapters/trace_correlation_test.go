package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/eventstore/fixtures"
)

func Test_EventTracker_With_OTelAdapters_CorrelatesLogsWithTrace(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics, reader := givenMetricsCollector(t)
	tracing, recorder, _ := givenTracingCollector(t)
	logs := &recordingLogger{minLevel: log.SeverityInfo}

	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)

	_, err = registry.AddSchema(ctx, fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV1)
	require.NoError(t, err)

	eventTracker, err := tracker.NewEventTracker(
		registry,
		validation.NewJSONSchemaValidator(),
		store.TransactionManager(),
		tracker.WithMetrics(metrics),
		tracker.WithTracing(tracing),
		tracker.WithContextualLogger(oteladapters.NewOTelLogger(logs)),
	)
	require.NoError(t, err)

	// act
	err = eventTracker.TrackEvent(ctx, tracker.TrackEventRequest{
		EntityType: fixtures.EntityTypeCustomer,
		EntityID:   "1",
		EventType:  eventstore.EventTypeCreated,
		ActorID:    "admin-1",
		ActorType:  eventstore.ActorTypeAdmin,
		EntityData: fixtures.Customer{ID: "1", Name: "John Doe", Email: "john.doe@example.com"},
	})

	// assert
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventstore.track_event", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	require.NotEmpty(t, logs.records)
	last := len(logs.records) - 1
	assert.Equal(t, "business event tracked", logs.records[last].Body().AsString())
	assert.Equal(t, spans[0].SpanContext().TraceID(), logs.traceIDs[last])

	m := collectMetric(t, reader, "eventstore_track_event_duration_seconds")
	histogram, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(1), histogram.DataPoints[0].Count)
}

func Test_EventTracker_With_OTelAdapters_When_SchemaIsMissing(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics, reader := givenMetricsCollector(t)
	tracing, recorder, _ := givenTracingCollector(t)

	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)

	eventTracker, err := tracker.NewEventTracker(
		registry,
		validation.NewJSONSchemaValidator(),
		store.TransactionManager(),
		tracker.WithMetrics(metrics),
		tracker.WithTracing(tracing),
	)
	require.NoError(t, err)

	// act
	err = eventTracker.TrackEvent(ctx, tracker.TrackEventRequest{
		EntityType: "Unknown",
		EntityID:   "1",
		EventType:  eventstore.EventTypeCreated,
		ActorID:    "admin-1",
		ActorType:  eventstore.ActorTypeAdmin,
		EntityData: map[string]any{"Id": "1"},
	})

	// assert
	require.ErrorIs(t, err, eventstore.ErrSchemaNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "operation failed: schema_not_found", spans[0].Status().Description)

	m := collectMetric(t, reader, "eventstore_track_event_errors_total")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}
