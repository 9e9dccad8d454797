package config

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go sqlite driver
)

const sqliteInMemoryDSN = "file::memory:?_pragma=foreign_keys(1)"

// SQLiteInMemoryDB opens a private in-memory SQLite database.
// The pool is limited to one connection because every connection would see its own empty database.
func SQLiteInMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", sqliteInMemoryDSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

// SQLiteInMemorySQLX opens a private in-memory SQLite database through sqlx.
func SQLiteInMemorySQLX() (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", sqliteInMemoryDSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	return db, nil
}
