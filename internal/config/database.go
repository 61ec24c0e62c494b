package config

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/lib/pq"
)

// NewPostgresConnection creates a new PostgreSQL database connection
func NewPostgresConnection(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, errors.New("database url is empty")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewBadgerConnection opens the embedded store at path. Writes are synced
// before commit returns, so a stored message survives a crash.
func NewBadgerConnection(path string) (*badger.DB, error) {
	if path == "" {
		return nil, errors.New("badger path is empty")
	}

	db, err := badger.Open(badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return db, nil
}
