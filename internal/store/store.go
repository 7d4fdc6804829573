// Package store persists projects, content, chapters and narratives in
// sqlite. All writes that a redelivered message can repeat are upserts keyed
// by the natural identifier, so at-least-once delivery never duplicates rows.
package store

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// Store wraps the sqlite handle and the query builder.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open opens (and creates if needed) the database at path. Use ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent workers and keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}
