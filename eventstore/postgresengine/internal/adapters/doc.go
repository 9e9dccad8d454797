// Package adapters provide database adapter implementations for the SQL storage engine.
//
// The adapters support pgxpool.Pool, sql.DB and sqlx.DB behind the common DBAdapter interface,
// including transactions. The PGX adapter optionally routes reads to a replica pool when the
// context asks for eventual consistency.
package adapters
