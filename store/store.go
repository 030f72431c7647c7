// Package store persists bundles in a SQLite database keyed by content
// hash.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chazu/weft/bundle"
)

// ErrBundleNotFound indicates the requested bundle doesn't exist.
var ErrBundleNotFound = errors.New("bundle not found")

// Store is a content-addressed bundle store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bundles (
		hash TEXT PRIMARY KEY,
		id   TEXT NOT NULL,
		name TEXT NOT NULL,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores a bundle under its content hash. Storing the same hash twice
// is a no-op: content-addressed data never changes.
func (s *Store) Put(b *bundle.Bundle) error {
	data, err := bundle.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO bundles (hash, id, name, data) VALUES (?, ?, ?, ?)",
		b.HashString(), b.ID, b.Name, data)
	if err != nil {
		return fmt.Errorf("storing bundle: %w", err)
	}
	return nil
}

// Get loads the bundle with the given hex content hash.
func (s *Store) Get(hash string) (*bundle.Bundle, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM bundles WHERE hash = ?", hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading bundle: %w", err)
	}
	return bundle.Unmarshal(data)
}

// Has reports whether a bundle with the given hash exists.
func (s *Store) Has(hash string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM bundles WHERE hash = ?", hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Entry describes one stored bundle.
type Entry struct {
	Hash string
	ID   string
	Name string
}

// List returns the stored bundles ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT hash, id, name FROM bundles ORDER BY name, hash")
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.ID, &e.Name); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the bundle with the given hash.
func (s *Store) Delete(hash string) error {
	res, err := s.db.Exec("DELETE FROM bundles WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("deleting bundle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBundleNotFound
	}
	return nil
}
