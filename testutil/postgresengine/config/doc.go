// Package config provides database configuration for SQL storage engine tests.
//
// PostgreSQL connections are created from the POSTGRES_TEST_DSN (and optionally POSTGRES_REPLICA_TEST_DSN)
// environment variables for each supported adapter (pgx.Pool, sql.DB, sqlx.DB). SQLite connections
// are in-memory databases of the pure Go modernc.org/sqlite driver, so the SQL engine can be tested
// without any database server.
package config
