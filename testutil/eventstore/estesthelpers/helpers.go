package estesthelpers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

const fixtureEntityData = `{"Id":"fixture","Name":"Fixture"}`

// GivenUniqueID returns a new UUID v7 as string.
func GivenUniqueID(t testing.TB) string {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err, "error generating a UUID v7")

	return id.String()
}

// FixtureEvent builds a valid BusinessEvent with schema version 1 and a fixed snapshot.
func FixtureEvent(
	t testing.TB,
	entityType string,
	entityID string,
	eventType eventstore.EventType,
	at time.Time,
) eventstore.BusinessEvent {

	t.Helper()

	event, err := eventstore.BuildBusinessEvent(
		entityType,
		entityID,
		eventType,
		1,
		at,
		"correlation-"+entityID,
		"actor-1",
		eventstore.ActorTypeUser,
		fixtureEntityData,
	)
	require.NoError(t, err, "error building fixture event")

	return event
}

// FixtureMetadataRow builds a string metadata row of event.
func FixtureMetadataRow(event eventstore.BusinessEvent, key, value string) eventstore.BusinessEventMetadata {
	return eventstore.BusinessEventMetadata{
		EventID:       event.EventID,
		MetadataKey:   key,
		EntityType:    event.EntityType,
		EntityID:      event.EntityID,
		MetadataValue: value,
		DataType:      eventstore.DataTypeString,
	}
}

// FixtureSchemaVersion builds a valid SchemaVersion created at createdDate.
func FixtureSchemaVersion(
	t testing.TB,
	entityType string,
	version int,
	definition string,
	createdDate time.Time,
) eventstore.SchemaVersion {

	t.Helper()

	schema, err := eventstore.BuildSchemaVersion(entityType, version, definition, createdDate)
	require.NoError(t, err, "error building fixture schema version")

	return schema
}

// GivenEventWasAppended appends event and its metadata rows to writer.
func GivenEventWasAppended(
	ctx context.Context,
	t testing.TB,
	writer eventstore.EventWriter,
	event eventstore.BusinessEvent,
	metadata ...eventstore.BusinessEventMetadata,
) {

	t.Helper()

	err := writer.AppendEvent(ctx, event, metadata)
	require.NoError(t, err, "error appending the fixture event")
}

// GivenSchemaWasInserted inserts schema into store.
func GivenSchemaWasInserted(ctx context.Context, t testing.TB, store eventstore.SchemaStore, schema eventstore.SchemaVersion) {
	t.Helper()

	err := store.InsertSchema(ctx, schema)
	require.NoError(t, err, "error inserting the fixture schema")
}
