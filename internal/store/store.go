// Package store persists clone sessions, the journal of applied updates
// and export records in SQLite. Store implements sink.Sink, so frame
// events are journalled as they happen.
package store

import (
	"database/sql"

	"github.com/hazyhaar/clonepages/dbopen"
)

// Store is the clonepages database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
