// Package store provides the SQLite journal for mudra: tracking sessions,
// dispatched click events and user settings.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Store is an open journal database.
type Store struct {
	db   *sql.DB
	path string
}

// dsn enables foreign keys (events cascade with their session), waits on a
// locked database instead of failing and keeps timestamps in SQLite's text
// format.
func dsn(path string) string {
	q := url.Values{
		"_pragma":      {"foreign_keys(1)", "busy_timeout(5000)"},
		"_time_format": {"sqlite"},
	}
	return path + "?" + q.Encode()
}

// New opens or creates the journal at path and brings its schema up to date.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection: SQLite has a single writer and the pragmas are per
	// connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the connection for tests and maintenance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
