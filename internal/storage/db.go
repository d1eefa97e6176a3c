// Package storage persists conversation log entries in a local SQLite
// database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"sinhome/internal/config"
	"sinhome/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// DB is the conversation log database.
type DB struct {
	*sql.DB
	path string
}

// Open opens the database at path, creating it and its directory when
// missing, and brings the schema up to date. Environment variables and a
// leading ~ in path are expanded.
func Open(path string) (*DB, error) {
	if path == MemoryPath {
		return open(path, path, 1)
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}
	if expanded == "" {
		return nil, errors.New("storage: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return open(expanded, expanded, 0)
}

func open(path, dsn string, maxConns int) (*DB, error) {
	q := url.Values{"_pragma": pragmas}
	db, err := sql.Open("sqlite", dsn+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxConns > 0 {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(maxConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the expanded database file path.
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion returns the highest applied migration.
func (db *DB) SchemaVersion() (int, error) {
	return migrations.Version(db.DB)
}
