package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/internal/observe"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine/internal/adapters"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/transaction"
)

const (
	// DialectPostgres renders SQL for PostgreSQL.
	DialectPostgres = "postgres"

	// DialectSQLite renders SQL for SQLite.
	DialectSQLite = "sqlite3"
)

const (
	defaultSchemaTableName   = "schema_versions"
	defaultEventTableName    = "business_events"
	defaultMetadataTableName = "business_event_metadata"

	// fixed width, so that the text representation in SQLite sorts chronologically
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	logMsgBuildQueryFailed  = "failed to build sql query"
	logMsgDBQueryFailed     = "database query execution failed"
	logMsgDBExecFailed      = "database execution failed"
	logMsgCloseRowsFailed   = "failed to close database rows"
	logMsgScanRowFailed     = "failed to scan database row"
	logMsgRollbackFailed    = "transaction rollback failed"
	logMsgSQLExecuted       = "executed sql for: "
	logMsgEventAppended     = "business event appended"
	logMsgSchemaInserted    = "schema version inserted"
	logMsgTablesCreated     = "tables created"
	logAttrQuery            = "query"
	logAttrDurationMS       = "duration_ms"
	logAttrEntityType       = "entity_type"
	logAttrEntityID         = "entity_id"
	logAttrEventID          = "event_id"
	logAttrMetadataRows     = "metadata_rows"
	logAttrSchemaVersion    = "schema_version"
	logAttrDialect          = "dialect"
	colEntityType           = "entity_type"
	colVersion              = "version"
	colSchemaDefinition     = "schema_definition"
	colCreatedDate          = "created_date"
	colEventID              = "event_id"
	colEntityID             = "entity_id"
	colEventType            = "event_type"
	colSchemaVersion        = "schema_version"
	colEventTimestamp       = "event_timestamp"
	colCorrelationID        = "correlation_id"
	colActorID              = "actor_id"
	colActorType            = "actor_type"
	colEntityData           = "entity_data"
	colMetadataKey          = "metadata_key"
	colMetadataValue        = "metadata_value"
	colDataType             = "data_type"
	spanAttrEntityType      = "entity_type"
	errorTypeBuildQuery     = "build_query"
	errorTypeDatabase       = "database_query"
	errorTypeRowScan        = "row_scan"
	errorTypeDuplicate      = "duplicate"
	metricStorageDuration   = "eventstore_storage_duration_seconds"
	metricStorageErrors     = "eventstore_storage_errors_total"
	operationAppendEvent    = "append_event"
	operationInsertSchema   = "insert_schema"
	operationReadSchemas    = "read_schemas"
	operationReadEvents     = "read_events"
	operationReadMetadata   = "read_metadata"
	operationCreateTables   = "create_tables"
	operationMatchEventIDs  = "match_event_ids"
	operationEventsByEntity = "events_for_entity"
)

func kindOf(operation string) observe.Kind {
	return observe.Kind{
		Operation:      operation,
		SpanName:       "eventstore.storage." + operation,
		DurationMetric: metricStorageDuration,
		ErrorsMetric:   metricStorageErrors,
	}
}

// EventStore is the SQL storage engine. It stores schema versions, business events and their metadata rows
// in three tables and implements eventstore.SchemaStore, eventstore.EventReader, eventstore.EventWriter
// and transaction.Manager.
type EventStore struct {
	db                adapters.DBAdapter
	dialect           string
	schemaTableName   string
	eventTableName    string
	metadataTableName string
	observer          observe.Observer
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore using a primary and a replica pgx Pool.
// Reads run on the replica when the context carries eventstore.WithEventualConsistency.
func NewEventStoreFromPGXPoolAndReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
// Use WithDialect(DialectSQLite) for SQLite databases.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:                db,
		dialect:           DialectPostgres,
		schemaTableName:   defaultSchemaTableName,
		eventTableName:    defaultEventTableName,
		metadataTableName: defaultMetadataTableName,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Dialect returns the SQL dialect the EventStore renders.
func (es *EventStore) Dialect() string {
	return es.dialect
}

// TransactionManager returns the EventStore itself, which starts database transactions.
func (es *EventStore) TransactionManager() transaction.Manager {
	return es
}

func (es *EventStore) builder() goqu.DialectWrapper {
	return goqu.Dialect(es.dialect)
}

// timestampValue returns the SQL value of t: a time for PostgreSQL, fixed width UTC text for SQLite.
func (es *EventStore) timestampValue(t time.Time) any {
	if es.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}

	return t.UTC()
}

// toSQL renders a goqu statement.
func (es *EventStore) toSQL(ctx context.Context, statement interface{ ToSQL() (string, []any, error) }) (string, error) {
	sqlQuery, _, err := statement.ToSQL()
	if err != nil {
		es.observer.Error(ctx, logMsgBuildQueryFailed, err)
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

// query runs a read statement and logs it with its duration at debug level.
func (es *EventStore) query(ctx context.Context, action string, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := es.db.Query(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		es.observer.Error(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, err
	}

	return rows, nil
}

// execer is satisfied by the adapter and by a started transaction.
type execer interface {
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// exec runs a write statement and logs it with its duration at debug level.
func (es *EventStore) exec(ctx context.Context, db execer, action string, sqlQuery string) (adapters.DBResult, error) {
	start := time.Now()
	result, err := db.Exec(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		es.observer.Error(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return nil, err
	}

	return result, nil
}

// closeRows closes database rows and logs a failure at warn level.
func (es *EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.observer.Warn(ctx, logMsgCloseRowsFailed, observe.AttrError, closeErr.Error())
	}
}

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (es *EventStore) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	es.observer.Debug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, observe.ToMilliseconds(duration), logAttrQuery, sqlQuery)
}

// CreateTables creates the schema, event and metadata tables with their indexes if they do not exist.
func (es *EventStore) CreateTables(ctx context.Context) error {
	op, ctx := es.observer.Start(ctx, kindOf(operationCreateTables), nil)

	for _, statement := range es.ddl() {
		if _, err := es.exec(ctx, es.db, operationCreateTables, statement); err != nil {
			op.Fail(errorTypeDatabase)
			return errors.Join(eventstore.ErrStorageFailed, err)
		}
	}

	op.Succeed(nil)
	es.observer.Info(ctx, logMsgTablesCreated, logAttrDialect, es.dialect)

	return nil
}

func (es *EventStore) ddl() []string {
	if es.dialect == DialectSQLite {
		return es.sqliteDDL()
	}

	return es.postgresDDL()
}

func (es *EventStore) postgresDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	entity_type       VARCHAR(255) NOT NULL,
	version           INTEGER      NOT NULL CHECK (version >= 1),
	schema_definition TEXT         NOT NULL,
	created_date      TIMESTAMPTZ  NOT NULL,
	PRIMARY KEY (entity_type, version)
)`, es.schemaTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	event_id        UUID         PRIMARY KEY,
	entity_type     VARCHAR(255) NOT NULL,
	entity_id       VARCHAR(255) NOT NULL,
	event_type      VARCHAR(20)  NOT NULL,
	schema_version  INTEGER      NOT NULL,
	event_timestamp TIMESTAMPTZ  NOT NULL,
	correlation_id  VARCHAR(255) NOT NULL,
	actor_id        VARCHAR(255) NOT NULL,
	actor_type      VARCHAR(20)  NOT NULL,
	entity_data     JSON         NOT NULL
)`, es.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_entity_idx ON %[1]s (entity_type, entity_id, event_timestamp)`, es.eventTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	event_id       UUID         NOT NULL REFERENCES %[2]s (event_id) ON DELETE CASCADE,
	metadata_key   VARCHAR(100) NOT NULL,
	entity_type    VARCHAR(255) NOT NULL,
	entity_id      VARCHAR(255) NOT NULL,
	metadata_value VARCHAR(500) NOT NULL,
	data_type      VARCHAR(20)  NOT NULL,
	PRIMARY KEY (event_id, metadata_key)
)`, es.metadataTableName, es.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_entity_key_idx ON %[1]s (entity_type, entity_id, metadata_key)`, es.metadataTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_key_value_idx ON %[1]s (metadata_key, metadata_value)`, es.metadataTableName),
	}
}

func (es *EventStore) sqliteDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	entity_type       TEXT    NOT NULL,
	version           INTEGER NOT NULL CHECK (version >= 1),
	schema_definition TEXT    NOT NULL,
	created_date      TEXT    NOT NULL,
	PRIMARY KEY (entity_type, version)
)`, es.schemaTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	event_id        TEXT    PRIMARY KEY,
	entity_type     TEXT    NOT NULL,
	entity_id       TEXT    NOT NULL,
	event_type      TEXT    NOT NULL,
	schema_version  INTEGER NOT NULL,
	event_timestamp TEXT    NOT NULL,
	correlation_id  TEXT    NOT NULL,
	actor_id        TEXT    NOT NULL,
	actor_type      TEXT    NOT NULL,
	entity_data     TEXT    NOT NULL
)`, es.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_entity_idx ON %[1]s (entity_type, entity_id, event_timestamp)`, es.eventTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	event_id       TEXT NOT NULL REFERENCES %[2]s (event_id) ON DELETE CASCADE,
	metadata_key   TEXT NOT NULL,
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	metadata_value TEXT NOT NULL,
	data_type      TEXT NOT NULL,
	PRIMARY KEY (event_id, metadata_key)
)`, es.metadataTableName, es.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_entity_key_idx ON %[1]s (entity_type, entity_id, metadata_key)`, es.metadataTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_key_value_idx ON %[1]s (metadata_key, metadata_value)`, es.metadataTableName),
	}
}

// dbTime scans timestamps from PostgreSQL (time.Time) and from SQLite (RFC 3339 text).
type dbTime struct {
	time.Time
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}

	return nil
}

func (t *dbTime) parse(text string) error {
	parsed, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return err
	}

	t.Time = parsed.UTC()

	return nil
}
