package store

import "errors"

var (
	// ErrNotFound is returned by Open when the database file does not exist
	// and CreateIfNotExists is false.
	ErrNotFound = errors.New("database not found")

	// ErrMigration is returned when the schema cannot be brought up to date.
	ErrMigration = errors.New("schema migration failed")
)
