package mongoengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
)

// ErrDuplicateMetadataKey is returned when the metadata rows of one event repeat a key.
var ErrDuplicateMetadataKey = errors.New("duplicate metadata key")

const (
	defaultSchemaCollection = "schema_versions"
	defaultEventCollection  = "business_events"

	logMsgDBQueryFailed    = "mongodb query failed"
	logMsgDBWriteFailed    = "mongodb write failed"
	logMsgDecodeFailed     = "failed to decode mongodb document"
	logMsgCloseCursor      = "failed to close mongodb cursor"
	logMsgCommandExecuted  = "executed mongodb command for: "
	logMsgEventAppended    = "business event appended"
	logMsgSchemaInserted   = "schema version inserted"
	logMsgIndexesCreated   = "indexes created"
	logAttrDurationMS      = "duration_ms"
	logAttrCollection      = "collection"
	logAttrEntityType      = "entity_type"
	logAttrEntityID        = "entity_id"
	logAttrEventID         = "event_id"
	logAttrMetadataRows    = "metadata_rows"
	logAttrSchemaVersion   = "schema_version"
	spanAttrEntityType     = "entity_type"
	errorTypeDatabase      = "database_query"
	errorTypeDecode        = "decode"
	errorTypeDuplicate     = "duplicate"
	errorTypeInvalidInput  = "invalid_input"
	metricStorageDuration  = "eventstore_storage_duration_seconds"
	metricStorageErrors    = "eventstore_storage_errors_total"
	operationAppendEvent   = "append_event"
	operationInsertSchema  = "insert_schema"
	operationReadSchemas   = "read_schemas"
	operationReadEvents    = "read_events"
	operationReadMetadata  = "read_metadata"
	operationCreateIndexes = "create_indexes"
	operationMatchEventIDs = "match_event_ids"
	fieldID                = "_id"
	fieldEntityType        = "entity_type"
	fieldVersion           = "version"
	fieldEntityID          = "entity_id"
	fieldEventType         = "event_type"
	fieldEventTimestamp    = "event_timestamp"
	fieldMetadata          = "metadata"
	fieldMetadataKey       = "key"
	fieldMetadataValue     = "value"
)

func kindOf(operation string) observe.Kind {
	return observe.Kind{
		Operation:      operation,
		SpanName:       "eventstore.storage." + operation,
		DurationMetric: metricStorageDuration,
		ErrorsMetric:   metricStorageErrors,
	}
}

// EventStore is the MongoDB storage engine.
// It implements eventstore.SchemaStore, eventstore.EventReader and eventstore.EventWriter.
type EventStore struct {
	db               *mongo.Database
	schemaCollection string
	eventCollection  string
	schemas          *mongo.Collection
	events           *mongo.Collection
	observer         observe.Observer
}

// NewEventStore creates a new EventStore on db with optional configuration.
func NewEventStore(db *mongo.Database, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	es := &EventStore{
		db:               db,
		schemaCollection: defaultSchemaCollection,
		eventCollection:  defaultEventCollection,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	es.schemas = db.Collection(es.schemaCollection)
	es.events = db.Collection(es.eventCollection)

	return es, nil
}

// TransactionManager returns a transaction.NoOpManager, single document writes are atomic.
func (es *EventStore) TransactionManager() transaction.NoOpManager {
	return transaction.NewNoOpManager(es)
}

// Indexes returns the required indexes per collection name.
func (es *EventStore) Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		es.schemaCollection: {
			{
				Keys:    bson.D{{Key: fieldEntityType, Value: 1}, {Key: fieldVersion, Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		es.eventCollection: {
			{
				Keys: bson.D{{Key: fieldEntityType, Value: 1}, {Key: fieldEntityID, Value: 1}, {Key: fieldEventTimestamp, Value: -1}},
			},
			{
				Keys: bson.D{{Key: fieldMetadata + "." + fieldMetadataKey, Value: 1}, {Key: fieldMetadata + "." + fieldMetadataValue, Value: 1}},
			},
		},
	}
}

// CreateIndexes creates the required indexes. Existing indexes are left untouched.
func (es *EventStore) CreateIndexes(ctx context.Context) error {
	op, ctx := es.observer.Start(ctx, kindOf(operationCreateIndexes), nil)

	for collection, models := range es.Indexes() {
		start := time.Now()
		_, err := es.db.Collection(collection).Indexes().CreateMany(ctx, models)
		es.logCommandWithDuration(ctx, operationCreateIndexes, collection, time.Since(start))

		if err != nil {
			op.Fail(errorTypeDatabase)
			es.observer.Error(ctx, logMsgDBWriteFailed, err, logAttrCollection, collection)

			return errors.Join(eventstore.ErrStorageFailed, err)
		}
	}

	op.Succeed(nil)
	es.observer.Info(ctx, logMsgIndexesCreated)

	return nil
}

/***** SchemaStore *****/

type schemaDocument struct {
	ID               string    `bson:"_id"`
	EntityType       string    `bson:"entity_type"`
	Version          int       `bson:"version"`
	SchemaDefinition string    `bson:"schema_definition"`
	CreatedDate      time.Time `bson:"created_date"`
}

func (d schemaDocument) toSchemaVersion() eventstore.SchemaVersion {
	return eventstore.SchemaVersion{
		EntityType:       d.EntityType,
		Version:          d.Version,
		SchemaDefinition: d.SchemaDefinition,
		CreatedDate:      d.CreatedDate.UTC(),
	}
}

func schemaID(entityType string, version int) string {
	return fmt.Sprintf("%s/%d", entityType, version)
}

// InsertSchema implements eventstore.SchemaStore.
func (es *EventStore) InsertSchema(ctx context.Context, schema eventstore.SchemaVersion) error {
	op, ctx := es.observer.Start(ctx, kindOf(operationInsertSchema), map[string]string{spanAttrEntityType: schema.EntityType})

	document := schemaDocument{
		ID:               schemaID(schema.EntityType, schema.Version),
		EntityType:       schema.EntityType,
		Version:          schema.Version,
		SchemaDefinition: schema.SchemaDefinition,
		CreatedDate:      schema.CreatedDate.UTC(),
	}

	start := time.Now()
	_, err := es.schemas.InsertOne(ctx, document)
	es.logCommandWithDuration(ctx, operationInsertSchema, es.schemaCollection, time.Since(start))

	switch {
	case mongo.IsDuplicateKeyError(err):
		op.Fail(errorTypeDuplicate)
		return fmt.Errorf("%w: %s version %d", eventstore.ErrSchemaAlreadyExists, schema.EntityType, schema.Version)

	case err != nil:
		op.Fail(errorTypeDatabase)
		es.observer.Error(ctx, logMsgDBWriteFailed, err, logAttrCollection, es.schemaCollection)

		return errors.Join(eventstore.ErrStorageFailed, err)
	}

	op.Succeed(nil)
	es.observer.Info(ctx, logMsgSchemaInserted, logAttrEntityType, schema.EntityType, logAttrSchemaVersion, schema.Version)

	return nil
}

// FindSchema implements eventstore.SchemaStore.
func (es *EventStore) FindSchema(ctx context.Context, entityType string, version int) (eventstore.SchemaVersion, error) {
	schemas, err := es.readSchemas(ctx, bson.M{fieldID: schemaID(entityType, version)}, options.Find().SetLimit(1))
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if len(schemas) == 0 {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schemas[0], nil
}

// FindLatestSchema implements eventstore.SchemaStore.
func (es *EventStore) FindLatestSchema(ctx context.Context, entityType string) (eventstore.SchemaVersion, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: fieldVersion, Value: -1}}).
		SetLimit(1)

	schemas, err := es.readSchemas(ctx, bson.M{fieldEntityType: entityType}, findOptions)
	if err != nil {
		return eventstore.SchemaVersion{}, err
	}

	if len(schemas) == 0 {
		return eventstore.SchemaVersion{}, eventstore.ErrSchemaNotFound
	}

	return schemas[0], nil
}

// ListSchemas implements eventstore.SchemaStore.
func (es *EventStore) ListSchemas(ctx context.Context, entityType string) ([]eventstore.SchemaVersion, error) {
	return es.readSchemas(ctx, bson.M{fieldEntityType: entityType}, options.Find().SetSort(bson.D{{Key: fieldVersion, Value: 1}}))
}

func (es *EventStore) readSchemas(ctx context.Context, filter bson.M, findOptions *options.FindOptions) ([]eventstore.SchemaVersion, error) {
	op, ctx := es.observer.Start(ctx, kindOf(operationReadSchemas), nil)

	var documents []schemaDocument
	if err := es.find(ctx, es.schemas, operationReadSchemas, filter, findOptions, &documents); err != nil {
		op.Fail(errorTypeOf(err))
		return nil, errors.Join(eventstore.ErrStorageFailed, err)
	}

	schemas := make([]eventstore.SchemaVersion, 0, len(documents))
	for _, document := range documents {
		schemas = append(schemas, document.toSchemaVersion())
	}

	op.Succeed(nil)

	return schemas, nil
}

/***** shared helpers *****/

// errDecode marks failures of decoding documents, as opposed to failed commands.
var errDecode = errors.New("decode failed")

func errorTypeOf(err error) string {
	if errors.Is(err, errDecode) {
		return errorTypeDecode
	}

	return errorTypeDatabase
}

// find runs a query and decodes all documents into results, a pointer to a slice.
func (es *EventStore) find(
	ctx context.Context,
	collection *mongo.Collection,
	action string,
	filter bson.M,
	findOptions *options.FindOptions,
	results any,
) error {

	start := time.Now()
	cursor, err := collection.Find(ctx, filter, findOptions)
	es.logCommandWithDuration(ctx, action, collection.Name(), time.Since(start))

	if err != nil {
		es.observer.Error(ctx, logMsgDBQueryFailed, err, logAttrCollection, collection.Name())
		return err
	}
	defer es.closeCursor(ctx, cursor)

	if err = cursor.All(ctx, results); err != nil {
		es.observer.Error(ctx, logMsgDecodeFailed, err, logAttrCollection, collection.Name())
		return errors.Join(errDecode, eventstore.ErrScanningDBRowFailed, err)
	}

	return nil
}

func (es *EventStore) closeCursor(ctx context.Context, cursor *mongo.Cursor) {
	if err := cursor.Close(ctx); err != nil {
		es.observer.Warn(ctx, logMsgCloseCursor, observe.AttrError, err.Error())
	}
}

func (es *EventStore) logCommandWithDuration(ctx context.Context, action, collection string, duration time.Duration) {
	es.observer.Debug(ctx, logMsgCommandExecuted+action, logAttrCollection, collection, logAttrDurationMS, observe.ToMilliseconds(duration))
}
