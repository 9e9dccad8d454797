// Package postgreswrapper provides SQL storage engines for testing postgresengine with every database adapter.
//
// CreateWrappers always returns SQLite based engines (sql.DB and sqlx.DB on an in-memory database).
// With POSTGRES_TEST_DSN set it adds PostgreSQL based engines for pgx.Pool, sql.DB and sqlx.DB.
// Every PostgreSQL engine works on its own uniquely named tables, which are dropped when the test ends.
package postgreswrapper
