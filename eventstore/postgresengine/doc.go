// Package postgresengine provides the SQL storage engine of the business event store.
//
// Schema versions, business events and their metadata rows are stored in three tables. All SQL is built
// with goqu and rendered for one of two dialects: PostgreSQL (default) or SQLite.
//
// Key features:
//   - Multiple database adapter support (pgx.Pool, sql.DB, sqlx.DB)
//   - Event and metadata rows are written atomically within one database transaction
//   - Read routing to a replica pool for contexts marked with eventstore.WithEventualConsistency
//   - Configurable table names, CreateTables for bootstrapping
//   - Dual-logger support, metrics and tracing of every storage operation
//
// Usage examples:
//
//	// PostgreSQL with pgx
//	pool, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		pool,
//		postgresengine.WithTableNames("schemas", "events", "event_metadata"),
//		postgresengine.WithLogger(slog.Default()),
//	)
//
//	// SQLite with the pure Go driver
//	db, _ := sql.Open("sqlite", "file:events.db")
//	store, _ := postgresengine.NewEventStoreFromSQLDB(db, postgresengine.WithDialect(postgresengine.DialectSQLite))
//
//	_ = store.CreateTables(ctx)
//	tracker, _ := tracker.NewEventTracker(registry, validator, store.TransactionManager())
package postgresengine
