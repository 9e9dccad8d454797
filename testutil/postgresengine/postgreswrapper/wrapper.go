package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/business-eventstore-go/testutil/postgresengine/config"
)

// Engine type constants
const (
	typePGXPool    = "postgres/pgx.pool"
	typeSQLDB      = "postgres/sql.db"
	typeSQLXDB     = "postgres/sqlx.db"
	typeSQLiteDB   = "sqlite/sql.db"
	typeSQLiteSQLX = "sqlite/sqlx.db"
)

// Wrapper abstracts over the different database adapters of the SQL storage engine.
type Wrapper interface {
	GetEventStore() *postgresengine.EventStore
	Name() string
}

type wrapper struct {
	name string
	es   *postgresengine.EventStore
}

func (w *wrapper) GetEventStore() *postgresengine.EventStore {
	return w.es
}

func (w *wrapper) Name() string {
	return w.name
}

// tableNames are unique per wrapper, so that parallel test runs don't interfere.
type tableNames struct {
	schema   string
	event    string
	metadata string
}

func uniqueTableNames() tableNames {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return tableNames{
		schema:   "test_schemas_" + suffix,
		event:    "test_events_" + suffix,
		metadata: "test_metadata_" + suffix,
	}
}

func (n tableNames) option() postgresengine.Option {
	return postgresengine.WithTableNames(n.schema, n.event, n.metadata)
}

func (n tableNames) dropStatements() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", n.metadata),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", n.event),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", n.schema),
	}
}

// CreateWrappers creates one wrapper per available database adapter with created tables.
// The options are applied to every EventStore.
func CreateWrappers(t testing.TB, options ...postgresengine.Option) []Wrapper {
	t.Helper()

	wrappers := []Wrapper{
		createSQLiteDBWrapper(t, options...),
		createSQLiteSQLXWrapper(t, options...),
	}

	dsn, ok := config.PostgresTestDSN()
	if !ok {
		return wrappers
	}

	return append(
		wrappers,
		createPGXPoolWrapper(t, dsn, options...),
		createPostgresSQLDBWrapper(t, dsn, options...),
		createPostgresSQLXWrapper(t, dsn, options...),
	)
}

// CreateSQLiteWrapper creates a wrapper on an in-memory SQLite database.
func CreateSQLiteWrapper(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	return createSQLiteDBWrapper(t, options...)
}

func createSQLiteDBWrapper(t testing.TB, options ...postgresengine.Option) Wrapper {
	db, err := config.SQLiteInMemoryDB()
	require.NoError(t, err, "error opening sqlite database")

	t.Cleanup(func() {
		_ = db.Close() // in-memory, nothing to clean up
	})

	es, err := postgresengine.NewEventStoreFromSQLDB(db, withDialect(postgresengine.DialectSQLite, options)...)
	require.NoError(t, err, "error creating event store")

	return prepared(t, typeSQLiteDB, es)
}

func createSQLiteSQLXWrapper(t testing.TB, options ...postgresengine.Option) Wrapper {
	db, err := config.SQLiteInMemorySQLX()
	require.NoError(t, err, "error opening sqlite database")

	t.Cleanup(func() {
		_ = db.Close() // in-memory, nothing to clean up
	})

	es, err := postgresengine.NewEventStoreFromSQLX(db, withDialect(postgresengine.DialectSQLite, options)...)
	require.NoError(t, err, "error creating event store")

	return prepared(t, typeSQLiteSQLX, es)
}

func createPGXPoolWrapper(t testing.TB, dsn string, options ...postgresengine.Option) Wrapper {
	poolConfig, err := config.PostgresPGXPoolTestConfig(dsn)
	require.NoError(t, err, "error parsing postgres dsn")

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	require.NoError(t, err, "error connecting to DB pool in test setup")

	names := uniqueTableNames()
	t.Cleanup(func() {
		for _, statement := range names.dropStatements() {
			_, _ = pool.Exec(context.Background(), statement)
		}
		pool.Close()
	})

	es, err := postgresengine.NewEventStoreFromPGXPool(pool, append(options, names.option())...)
	require.NoError(t, err, "error creating event store")

	return prepared(t, typePGXPool, es)
}

func createPostgresSQLDBWrapper(t testing.TB, dsn string, options ...postgresengine.Option) Wrapper {
	db, err := config.PostgresSQLDBTestConfig(dsn)
	require.NoError(t, err, "error connecting to postgres")

	names := uniqueTableNames()
	t.Cleanup(func() {
		dropTables(db, names)
		_ = db.Close()
	})

	es, err := postgresengine.NewEventStoreFromSQLDB(db, append(options, names.option())...)
	require.NoError(t, err, "error creating event store")

	return prepared(t, typeSQLDB, es)
}

func createPostgresSQLXWrapper(t testing.TB, dsn string, options ...postgresengine.Option) Wrapper {
	db, err := config.PostgresSQLXTestConfig(dsn)
	require.NoError(t, err, "error connecting to postgres")

	names := uniqueTableNames()
	t.Cleanup(func() {
		dropTables(db.DB, names)
		_ = db.Close()
	})

	es, err := postgresengine.NewEventStoreFromSQLX(db, append(options, names.option())...)
	require.NoError(t, err, "error creating event store")

	return prepared(t, typeSQLXDB, es)
}

func withDialect(dialect string, options []postgresengine.Option) []postgresengine.Option {
	return append([]postgresengine.Option{postgresengine.WithDialect(dialect)}, options...)
}

func dropTables(db *sql.DB, names tableNames) {
	for _, statement := range names.dropStatements() {
		_, _ = db.ExecContext(context.Background(), statement)
	}
}

func prepared(t testing.TB, name string, es *postgresengine.EventStore) Wrapper {
	err := es.CreateTables(context.Background())
	require.NoError(t, err, "error creating tables for %s", name)

	return &wrapper{name: name, es: es}
}
