// Package store is the persistence layer for the monitor: content
// fingerprints for deduplication, detected changes, and the per-source
// check log.
//
// The store receives an already-opened *sql.DB and owns the schema on
// it. All timestamps are stored as Unix milliseconds.
package store

import "database/sql"

// Store wraps the monitor database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
