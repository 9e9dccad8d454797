package eventstore

import (
	"errors"
)

var (
	// ErrNilDatabaseConnection is returned when a storage engine is constructed without a connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table or collection name is configured.
	ErrEmptyTableName = errors.New("empty table name supplied")

	// ErrSchemaNotFound is returned when no schema is registered for an entity type (and version).
	ErrSchemaNotFound = errors.New("no schema found")

	// ErrSchemaAlreadyExists is returned when the (entity type, version) pair is already registered.
	ErrSchemaAlreadyExists = errors.New("schema version already exists")

	// ErrInvalidSchemaDefinition is returned when a schema definition is not parseable JSON.
	ErrInvalidSchemaDefinition = errors.New("schema definition is not valid json")

	// ErrInvalidSchemaVersion is returned for schema versions lower than 1.
	ErrInvalidSchemaVersion = errors.New("schema version must be greater than or equal to 1")

	// ErrEmptyEntityType is returned when an entity type is empty.
	ErrEmptyEntityType = errors.New("entity type must not be empty")

	// ErrEmptyEntityID is returned when an entity id is empty.
	ErrEmptyEntityID = errors.New("entity id must not be empty")

	// ErrInvalidEventType is returned for event types outside of Created, Updated, Deleted, Viewed.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidActorType is returned for actor types outside of User, Admin, System.
	ErrInvalidActorType = errors.New("invalid actor type")

	// ErrInvalidEntityDataJSON is returned when entity data is not valid JSON.
	ErrInvalidEntityDataJSON = errors.New("entity data json is not valid")

	// ErrSchemaValidationFailed is returned by validators when a document violates its schema.
	ErrSchemaValidationFailed = errors.New("schema validation failed")

	// ErrEntityDataDoesNotMatchSchema is returned by the tracker when validation rejects the entity data.
	ErrEntityDataDoesNotMatchSchema = errors.New("entity data does not match schema")

	// ErrSerializingEntityDataFailed is returned when entity data can not be serialized to JSON.
	ErrSerializingEntityDataFailed = errors.New("serializing entity data failed")

	// ErrTrackingEventFailed is returned when persisting a business event fails.
	ErrTrackingEventFailed = errors.New("tracking event failed")

	// ErrAppendingEventFailed is returned when the storage engine fails to write an event.
	ErrAppendingEventFailed = errors.New("appending event failed")

	// ErrQueryingEventsFailed is returned when reading events fails.
	ErrQueryingEventsFailed = errors.New("querying events failed")

	// ErrMissingEntityType is returned for searches without an entity type.
	ErrMissingEntityType = errors.New("entityType is required")

	// ErrEventNotFound is returned when an event id is unknown.
	ErrEventNotFound = errors.New("event not found")

	// ErrStorageFailed is returned for storage failures outside of event reads and writes.
	ErrStorageFailed = errors.New("storage operation failed")

	// ErrBuildingQueryFailed is returned when the SQL builder can not produce a statement.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrScanningDBRowFailed is returned when a database row can not be scanned.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrTransactionFailed is returned when beginning, committing or rolling back a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")
)
