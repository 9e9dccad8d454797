package mongoengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	. "github.com/AntonStoeckl/business-eventstore-go/eventstore/mongoengine"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/query"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
	. "github.com/AntonStoeckl/business-eventstore-go/testutil/eventstore/estesthelpers" //nolint:revive
	"github.com/AntonStoeckl/business-eventstore-go/testutil/eventstore/fixtures"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/mongoengine/config"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/observability/testdoubles"
)

// whole seconds, BSON dates store milliseconds
var baseTime = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// unconnectedDatabase returns a database handle without a reachable server, mongo.Connect does not dial.
func unconnectedDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := mongo.Connect(context.Background(), config.MongoTestClientOptions("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database("unused")
}

// givenEventStore creates an EventStore on a fresh database of the MongoDB test server, dropped when the test ends.
func givenEventStore(t *testing.T, options ...Option) *EventStore {
	t.Helper()

	uri, ok := config.MongoTestURI()
	if !ok {
		t.Skip("MONGO_TEST_URI is required for MongoDB integration tests")
	}

	ctx := context.Background()
	client, err := mongo.Connect(ctx, config.MongoTestClientOptions(uri))
	require.NoError(t, err)

	id := GivenUniqueID(t)
	db := client.Database("eventstore_test_" + id[len(id)-12:])

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	es, err := NewEventStore(db, options...)
	require.NoError(t, err)
	require.NoError(t, es.CreateIndexes(ctx))

	return es
}

func Test_NewEventStore_When_DatabaseIsNil(t *testing.T) {
	// act
	es, err := NewEventStore(nil)

	// assert
	assert.ErrorIs(t, err, eventstore.ErrNilDatabaseConnection)
	assert.Nil(t, es)
}

func Test_NewEventStore_When_CollectionNamesAreEmpty(t *testing.T) {
	// setup
	db := unconnectedDatabase(t)

	// act
	_, emptySchemaErr := NewEventStore(db, WithCollectionNames("", "events"))
	_, emptyEventErr := NewEventStore(db, WithCollectionNames("schemas", ""))
	es, validErr := NewEventStore(db, WithCollectionNames("schemas", "events"))

	// assert
	assert.ErrorIs(t, emptySchemaErr, eventstore.ErrEmptyTableName)
	assert.ErrorIs(t, emptyEventErr, eventstore.ErrEmptyTableName)
	require.NoError(t, validErr)
	assert.Contains(t, es.Indexes(), "schemas")
	assert.Contains(t, es.Indexes(), "events")
}

func Test_Indexes(t *testing.T) {
	// setup
	es, err := NewEventStore(unconnectedDatabase(t))
	require.NoError(t, err)

	// act
	indexes := es.Indexes()

	// assert
	require.Len(t, indexes["schema_versions"], 1)
	assert.True(t, *indexes["schema_versions"][0].Options.Unique, "(entity_type, version) should be unique")
	assert.Len(t, indexes["business_events"], 2)
}

func Test_AppendEvent_When_MetadataKeysAreDuplicated(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics := testdoubles.NewMetricsCollectorSpy()
	es, err := NewEventStore(unconnectedDatabase(t), WithMetrics(metrics))
	require.NoError(t, err)

	// arrange
	event := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-1", eventstore.EventTypeCreated, baseTime)

	// act
	err = es.AppendEvent(ctx, event, eventstore.MetadataRows{
		FixtureMetadataRow(event, "Email", "a@example.com"),
		FixtureMetadataRow(event, "Email", "b@example.com"),
	})

	// assert
	assert.ErrorIs(t, err, ErrDuplicateMetadataKey)
	assert.ErrorIs(t, err, eventstore.ErrAppendingEventFailed)
	assert.True(t, metrics.HasCounterRecordForMetric("eventstore_storage_errors_total").
		WithOperation("append_event").WithErrorType("invalid_input").Assert())
}

func Test_InsertSchema_And_FindSchemas(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)

	// arrange
	v1 := FixtureSchemaVersion(t, fixtures.EntityTypeCustomer, 1, fixtures.CustomerSchemaV1, baseTime)
	v2 := FixtureSchemaVersion(t, fixtures.EntityTypeCustomer, 2, fixtures.CustomerSchemaV2, baseTime.Add(time.Hour))

	// act
	GivenSchemaWasInserted(ctx, t, es, v2)
	GivenSchemaWasInserted(ctx, t, es, v1)
	duplicateErr := es.InsertSchema(ctx, v1)

	// assert
	assert.ErrorIs(t, duplicateErr, eventstore.ErrSchemaAlreadyExists)

	found, err := es.FindSchema(ctx, fixtures.EntityTypeCustomer, 1)
	require.NoError(t, err)
	assert.Equal(t, v1, found)

	latest, err := es.FindLatestSchema(ctx, fixtures.EntityTypeCustomer)
	require.NoError(t, err)
	assert.Equal(t, v2, latest)

	listed, err := es.ListSchemas(ctx, fixtures.EntityTypeCustomer)
	require.NoError(t, err)
	assert.Equal(t, []eventstore.SchemaVersion{v1, v2}, listed)

	_, err = es.FindLatestSchema(ctx, fixtures.EntityTypeOrder)
	assert.ErrorIs(t, err, eventstore.ErrSchemaNotFound)
}

func Test_AppendEvent_And_ReadEvents(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)

	// arrange
	created := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-1", eventstore.EventTypeCreated, baseTime)
	updated := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-1", eventstore.EventTypeUpdated, baseTime.Add(time.Minute))
	other := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-2", eventstore.EventTypeCreated, baseTime.Add(time.Hour))

	// act
	GivenEventWasAppended(ctx, t, es, created, FixtureMetadataRow(created, "Email", "john@example.com"))
	GivenEventWasAppended(ctx, t, es, updated, FixtureMetadataRow(updated, "Email", "johnny@example.com"))
	GivenEventWasAppended(ctx, t, es, other)
	duplicateErr := es.AppendEvent(ctx, other, nil)

	// assert
	assert.ErrorIs(t, duplicateErr, eventstore.ErrAppendingEventFailed)

	forEntity, err := es.EventsForEntity(ctx, fixtures.EntityTypeCustomer, "c-1")
	require.NoError(t, err)
	assert.Equal(t, eventstore.BusinessEvents{updated, created}, forEntity)

	all, err := es.AllEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, eventstore.BusinessEvents{other, updated, created}, all)

	byID, err := es.EventByID(ctx, created.EventID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	_, err = es.EventByID(ctx, uuid.New())
	assert.ErrorIs(t, err, eventstore.ErrEventNotFound)

	limited, err := es.FindEvents(ctx, eventstore.EventCriteria{EntityType: fixtures.EntityTypeCustomer, EventType: eventstore.EventTypeCreated, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, eventstore.BusinessEvents{other}, limited)

	byIDs, err := es.FindEvents(ctx, eventstore.EventCriteria{EntityType: fixtures.EntityTypeCustomer, EventIDs: []uuid.UUID{created.EventID}})
	require.NoError(t, err)
	assert.Equal(t, eventstore.BusinessEvents{created}, byIDs)
}

func Test_MatchingEventIDs_And_MetadataForEvents(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)

	// arrange
	john := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-1", eventstore.EventTypeCreated, baseTime)
	ann := FixtureEvent(t, fixtures.EntityTypeCustomer, "c-2", eventstore.EventTypeCreated, baseTime.Add(time.Minute))
	order := FixtureEvent(t, fixtures.EntityTypeOrder, "o-1", eventstore.EventTypeCreated, baseTime.Add(2*time.Minute))

	GivenEventWasAppended(ctx, t, es, john, FixtureMetadataRow(john, "Name", "John"), FixtureMetadataRow(john, "Email", "john@example.com"))
	GivenEventWasAppended(ctx, t, es, ann, FixtureMetadataRow(ann, "Email", "ann@other.org"))
	GivenEventWasAppended(ctx, t, es, order, FixtureMetadataRow(order, "Email", "john@example.com"))

	// act
	exact, err := es.MatchingEventIDs(ctx, fixtures.EntityTypeCustomer, eventstore.P("Email", "john@example.com"))
	require.NoError(t, err)
	wildcard, err := es.MatchingEventIDs(ctx, fixtures.EntityTypeCustomer, eventstore.P("Email", "*@other.org"))
	require.NoError(t, err)
	underscore, err := es.MatchingEventIDs(ctx, fixtures.EntityTypeCustomer, eventstore.P("Email", "*@other_org"))
	require.NoError(t, err)
	rows, err := es.MetadataForEvents(ctx, []uuid.UUID{john.EventID}, nil)
	require.NoError(t, err)

	// assert
	assert.Equal(t, []uuid.UUID{john.EventID}, exact)
	assert.Equal(t, []uuid.UUID{ann.EventID}, wildcard)
	assert.Empty(t, underscore)
	assert.Equal(t, eventstore.MetadataRows{
		FixtureMetadataRow(john, "Email", "john@example.com"),
		FixtureMetadataRow(john, "Name", "John"),
	}, rows, "rows should be ordered by key")
}

func Test_TrackEvent_And_SearchEvents_Through_MongoStore(t *testing.T) {
	// setup
	ctx := context.Background()
	es := givenEventStore(t)

	registry, err := schemaregistry.NewRegistry(es)
	require.NoError(t, err)
	_, err = registry.AddSchema(ctx, fixtures.EntityTypeOrder, 1, fixtures.OrderSchemaV1)
	require.NoError(t, err)

	eventTracker, err := tracker.NewEventTracker(registry, validation.NewJSONSchemaValidator(), es.TransactionManager())
	require.NoError(t, err)
	engine, err := query.NewEngine(es)
	require.NoError(t, err)

	// arrange
	order := fixtures.FakeOrder("c-1", "SKU-1", "SKU-2")

	// act
	trackErr := eventTracker.TrackEvent(ctx, tracker.TrackEventRequest{
		EntityType: fixtures.EntityTypeOrder,
		EntityID:   order.ID,
		EventType:  eventstore.EventTypeCreated,
		ActorID:    "system",
		ActorType:  eventstore.ActorTypeSystem,
		EntityData: order,
	})
	responses, searchErr := engine.SearchEvents(ctx, eventstore.BuildSearchFilter(fixtures.EntityTypeOrder).
		Matching(eventstore.P("Items[1].Sku", "SKU-2")).
		Finalize())

	// assert
	require.NoError(t, trackErr)
	require.NoError(t, searchErr)
	require.Len(t, responses, 1)
	assert.Equal(t, order.ID, responses[0].EntityID)
	assert.Equal(t, "SKU-1", responses[0].Fields["Items[0].Sku"])
}
