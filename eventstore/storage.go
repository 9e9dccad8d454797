package eventstore

import (
	"context"

	"github.com/google/uuid"
)

// SchemaStore persists SchemaVersion records.
//
// Implementations return ErrSchemaNotFound for missing schemas and ErrSchemaAlreadyExists
// when the (EntityType, Version) key is taken.
type SchemaStore interface {
	InsertSchema(ctx context.Context, schema SchemaVersion) error
	FindSchema(ctx context.Context, entityType string, version int) (SchemaVersion, error)
	FindLatestSchema(ctx context.Context, entityType string) (SchemaVersion, error)
	ListSchemas(ctx context.Context, entityType string) ([]SchemaVersion, error)
}

// EventWriter appends one event together with its metadata rows.
//
// Within a transaction the event row is written first, then the metadata rows.
type EventWriter interface {
	AppendEvent(ctx context.Context, event BusinessEvent, metadata MetadataRows) error
}

// EventCriteria is the base filter for event lookups.
//
// An empty EventType matches all event types. A nil EventIDs slice does not restrict the result,
// a non-nil one restricts it to the given ids. Limit <= 0 means unlimited.
type EventCriteria struct {
	EntityType string
	EventType  EventType
	EventIDs   []uuid.UUID
	Limit      int
}

// EventReader reads events and metadata rows. All event lists are ordered newest first.
type EventReader interface {
	EventsForEntity(ctx context.Context, entityType, entityID string) (BusinessEvents, error)
	EventByID(ctx context.Context, eventID uuid.UUID) (BusinessEvent, error)
	AllEvents(ctx context.Context) (BusinessEvents, error)
	FindEvents(ctx context.Context, criteria EventCriteria) (BusinessEvents, error)
	MatchingEventIDs(ctx context.Context, entityType string, predicate SearchPredicate) ([]uuid.UUID, error)
	MetadataForEvents(ctx context.Context, eventIDs []uuid.UUID, keys []string) (MetadataRows, error)
}
