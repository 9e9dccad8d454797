package tracker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/changefeed"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/jsonpatch"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/memoryengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	. "github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/eventstore/fixtures"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/observability/testdoubles"
)

type harness struct {
	store    *memoryengine.Store
	registry *schemaregistry.Registry
	tracker  *EventTracker
}

func newHarness(t *testing.T, options ...Option) harness {
	t.Helper()

	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)

	_, err = registry.AddSchema(context.Background(), fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV1)
	require.NoError(t, err)
	_, err = registry.AddSchema(context.Background(), fixtures.EntityTypeOrder, 1, fixtures.OrderSchemaV1)
	require.NoError(t, err)

	eventTracker, err := NewEventTracker(registry, validation.NewJSONSchemaValidator(), store.TransactionManager(), options...)
	require.NoError(t, err)

	return harness{store: store, registry: registry, tracker: eventTracker}
}

func customerRequest(customer fixtures.Customer, eventType eventstore.EventType) TrackEventRequest {
	return TrackEventRequest{
		EntityType: fixtures.EntityTypeCustomer,
		EntityID:   customer.ID,
		EventType:  eventType,
		ActorID:    "admin-1",
		ActorType:  eventstore.ActorTypeAdmin,
		EntityData: customer,
	}
}

func Test_TrackEvent_PersistsEventAndMetadata(t *testing.T) {
	// setup
	ctx := context.Background()
	h := newHarness(t)

	// arrange
	customer := fixtures.Customer{ID: "1", Name: "John Doe", Email: "john.doe@example.com"}

	// act
	event, err := h.tracker.TrackEventWithResult(ctx, customerRequest(customer, eventstore.EventTypeCreated))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, event.SchemaVersion)
	assert.NotEmpty(t, event.CorrelationID)
	assert.Equal(t, time.UTC, event.EventTimestamp.Location())

	events, err := h.store.EventsForEntity(ctx, fixtures.EntityTypeCustomer, "1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].EntityData, "john.doe@example.com")

	rows, err := h.store.MetadataForEvents(ctx, []uuid.UUID{event.EventID}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Email", "Id", "Name"}, metadataKeys(rows))
}

func Test_TrackEvent_UsesRequestedVersionAndCorrelation(t *testing.T) {
	// setup
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.registry.AddSchema(ctx, fixtures.EntityTypeCustomer, 2, fixtures.CustomerSchemaV2)
	require.NoError(t, err)

	// arrange
	timestamp := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	request := customerRequest(fixtures.FakeCustomer(), eventstore.EventTypeUpdated)
	request.SchemaVersion = 1
	request.CorrelationID = "corr-42"
	request.Timestamp = timestamp

	// act
	event, err := h.tracker.TrackEventWithResult(ctx, request)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, event.SchemaVersion)
	assert.Equal(t, "corr-42", event.CorrelationID)
	assert.True(t, timestamp.Equal(event.EventTimestamp))
	assert.Equal(t, time.UTC, event.EventTimestamp.Location())
}

func Test_TrackEvent_When_NoSchemaIsRegistered(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)
	validator := &validatorSpy{}
	eventTracker, err := NewEventTracker(registry, validator, store.TransactionManager())
	require.NoError(t, err)

	// act
	err = eventTracker.TrackEvent(ctx, TrackEventRequest{
		EntityType: "Invoice",
		EntityID:   "i-1",
		EventType:  eventstore.EventTypeCreated,
		ActorType:  eventstore.ActorTypeSystem,
		EntityData: map[string]any{"Id": "i-1"},
	})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrSchemaNotFound)
	assert.EqualError(t, err, "no schema found for entity type 'Invoice'")
	assert.Zero(t, validator.calls)
}

func Test_TrackEvent_When_EntityDataViolatesTheSchema(t *testing.T) {
	testCases := []struct {
		description string
		customer    fixtures.Customer
		violation   string
	}{
		{
			description: "invalid email format",
			customer:    fixtures.Customer{ID: "1", Name: "John", Email: "not-an-email"},
			violation:   "Email",
		},
		{
			description: "empty name",
			customer:    fixtures.Customer{ID: "1", Email: "john@example.com"},
			violation:   "Name",
		},
		{
			description: "negative age",
			customer:    fixtures.Customer{ID: "1", Name: "John", Email: "john@example.com", Age: -1},
			violation:   "Age",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// setup
			ctx := context.Background()
			logger := testdoubles.NewContextualLoggerSpy()
			h := newHarness(t, WithContextualLogger(logger))

			// act
			err := h.tracker.TrackEvent(ctx, customerRequest(tc.customer, eventstore.EventTypeCreated))

			// assert
			assert.ErrorIs(t, err, eventstore.ErrEntityDataDoesNotMatchSchema)
			assert.ErrorIs(t, err, eventstore.ErrSchemaValidationFailed)
			assert.True(t, strings.HasPrefix(err.Error(), "entity data does not match schema: "))
			assert.Contains(t, err.Error(), tc.violation)

			all, err := h.store.AllEvents(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			errorLogs := logger.RecordsAt("error")
			require.Len(t, errorLogs, 1)
			entityData, found := errorLogs[0].Attr("entity_data")
			assert.True(t, found)
			assert.Contains(t, entityData, `"Id":"1"`)
			_, found = errorLogs[0].Attr("schema_definition")
			assert.True(t, found)
		})
	}
}

func Test_TrackEvent_When_RequestIsInvalid(t *testing.T) {
	// setup
	ctx := context.Background()
	h := newHarness(t)
	customer := fixtures.FakeCustomer()

	// arrange
	withEmptyID := customerRequest(customer, eventstore.EventTypeCreated)
	withEmptyID.EntityID = ""
	withUnknownEventType := customerRequest(customer, "Archived")
	withUnknownActorType := customerRequest(customer, eventstore.EventTypeCreated)
	withUnknownActorType.ActorType = "Robot"

	// act
	errEmptyID := h.tracker.TrackEvent(ctx, withEmptyID)
	errEventType := h.tracker.TrackEvent(ctx, withUnknownEventType)
	errActorType := h.tracker.TrackEvent(ctx, withUnknownActorType)
	errSerialize := h.tracker.TrackEvent(ctx, TrackEventRequest{
		EntityType: fixtures.EntityTypeCustomer,
		EntityID:   "1",
		EventType:  eventstore.EventTypeCreated,
		ActorType:  eventstore.ActorTypeUser,
		EntityData: map[string]any{"Id": make(chan int)},
	})

	// assert
	assert.ErrorIs(t, errEmptyID, eventstore.ErrEmptyEntityID)
	assert.ErrorIs(t, errEventType, eventstore.ErrInvalidEventType)
	assert.ErrorIs(t, errActorType, eventstore.ErrInvalidActorType)
	assert.ErrorIs(t, errSerialize, eventstore.ErrSerializingEntityDataFailed)

	all, err := h.store.AllEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func Test_TrackEvent_AcceptsRawJSON(t *testing.T) {
	// setup
	ctx := context.Background()
	h := newHarness(t)

	// arrange
	request := customerRequest(fixtures.Customer{}, eventstore.EventTypeCreated)
	request.EntityID = "7"
	request.EntityData = json.RawMessage(`{ "Name": "Ann",  "Id": "7", "Email": "ann@example.com" }`)

	// act
	event, err := h.tracker.TrackEventWithResult(ctx, request)

	// assert
	require.NoError(t, err)
	assert.Equal(t, `{"Email":"ann@example.com","Id":"7","Name":"Ann"}`, event.EntityData)
}

func Test_TrackEvent_ExpandsArrayMetadata(t *testing.T) {
	// setup
	ctx := context.Background()
	h := newHarness(t)
	order := fixtures.FakeOrder("c-1", "SKU-1", "SKU-2")

	// act
	event, err := h.tracker.TrackEventWithResult(ctx, TrackEventRequest{
		EntityType: fixtures.EntityTypeOrder,
		EntityID:   order.ID,
		EventType:  eventstore.EventTypeCreated,
		ActorID:    "c-1",
		ActorType:  eventstore.ActorTypeUser,
		EntityData: order,
	})

	// assert
	require.NoError(t, err)

	rows, err := h.store.MetadataForEvents(ctx, []uuid.UUID{event.EventID}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(
		t,
		[]string{"CustomerId", "Id", "Items[0].Sku", "Items[1].Sku", "Status", "Total"},
		metadataKeys(rows),
	)
}

func Test_TrackEvent_When_WriteFails_NothingIsPersisted(t *testing.T) {
	// setup
	ctx := context.Background()
	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)
	_, err = registry.AddSchema(ctx, fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV1)
	require.NoError(t, err)

	writeErr := errors.New("disk full")
	manager := &failingManager{err: writeErr}
	eventTracker, err := NewEventTracker(registry, validation.NewJSONSchemaValidator(), manager)
	require.NoError(t, err)

	// act
	err = eventTracker.TrackEvent(ctx, customerRequest(fixtures.FakeCustomer(), eventstore.EventTypeCreated))

	// assert
	assert.ErrorIs(t, err, eventstore.ErrTrackingEventFailed)
	assert.ErrorIs(t, err, writeErr)
	assert.True(t, manager.rolledBack)
	assert.False(t, manager.committed)
}

func Test_TrackEvent_PublishesChangeNotifications(t *testing.T) {
	// setup
	ctx := context.Background()
	publisher := changefeed.NewMemoryPublisher(0)
	store := memoryengine.NewStore()
	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)
	_, err = registry.AddSchema(ctx, fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV1)
	require.NoError(t, err)
	eventTracker, err := NewEventTracker(
		registry,
		validation.NewJSONSchemaValidator(),
		store.TransactionManager(),
		WithChangeFeed(publisher, store),
	)
	require.NoError(t, err)

	// arrange
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	customer := fixtures.Customer{ID: "1", Name: "John", Email: "john@example.com"}
	created := customerRequest(customer, eventstore.EventTypeCreated)
	created.Timestamp = base

	customer.Name = "Johnny"
	updated := customerRequest(customer, eventstore.EventTypeUpdated)
	updated.Timestamp = base.Add(time.Minute)

	// act
	require.NoError(t, eventTracker.TrackEvent(ctx, created))
	require.NoError(t, eventTracker.TrackEvent(ctx, updated))

	// assert
	notifications := publisher.Notifications()
	require.Len(t, notifications, 2)

	assert.Equal(t, eventstore.EventTypeCreated, notifications[0].EventType)
	assert.Len(t, notifications[0].Patch, 3)
	assert.Equal(t, jsonpatch.OpAdd, notifications[0].Patch[0].Op)

	assert.Equal(t, eventstore.EventTypeUpdated, notifications[1].EventType)
	require.Len(t, notifications[1].Patch, 1)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpReplace, Path: "/Name", Value: "Johnny"}, notifications[1].Patch[0])
}

func Test_TrackEvent_RecordsMetricsAndSpans(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	h := newHarness(t, WithMetrics(metrics), WithTracing(tracing))

	// act
	require.NoError(t, h.tracker.TrackEvent(ctx, customerRequest(fixtures.FakeCustomer(), eventstore.EventTypeCreated)))
	_ = h.tracker.TrackEvent(ctx, customerRequest(fixtures.Customer{ID: "x"}, eventstore.EventTypeCreated))

	// assert
	assert.True(t, metrics.HasDurationRecordForMetric("eventstore_track_event_duration_seconds").
		WithOperation("track_event").WithStatus("success").Assert())
	assert.True(t, metrics.HasDurationRecordForMetric("eventstore_track_event_duration_seconds").
		WithStatus("error").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("eventstore_track_event_errors_total").
		WithErrorType("validation").Assert())
	assert.True(t, metrics.HasValueRecordForMetric("eventstore_metadata_rows_extracted").Assert())

	assert.True(t, tracing.HasSpanRecordForName("eventstore.track_event").
		WithStartAttribute("entity_type", fixtures.EntityTypeCustomer).
		WithStatus("success").
		WithSpanAttribute("metadata_rows", "3").
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("eventstore.track_event").WithStatus("error").Assert())
}

func Test_NewEventTracker_When_DependenciesAreMissing(t *testing.T) {
	store := memoryengine.NewStore()

	_, err := NewEventTracker(nil, validation.NewJSONSchemaValidator(), store.TransactionManager())
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)

	registry, err := schemaregistry.NewRegistry(store)
	require.NoError(t, err)
	_, err = NewEventTracker(registry, validation.NewJSONSchemaValidator(), store.TransactionManager(), WithChangeFeed(nil, store))
	assert.Error(t, err)
}

/***** test doubles *****/

type validatorSpy struct {
	calls int
}

func (v *validatorSpy) Validate(string, string) error {
	v.calls++
	return nil
}

type failingManager struct {
	err        error
	committed  bool
	rolledBack bool
}

func (m *failingManager) Begin(context.Context) (transaction.Transaction, error) {
	return m, nil
}

func (m *failingManager) AppendEvent(context.Context, eventstore.BusinessEvent, eventstore.MetadataRows) error {
	return m.err
}

func (m *failingManager) Commit() error {
	m.committed = true
	return nil
}

func (m *failingManager) Rollback() error {
	m.rolledBack = true
	return nil
}

func metadataKeys(rows eventstore.MetadataRows) []string {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.MetadataKey)
	}

	return keys
}
