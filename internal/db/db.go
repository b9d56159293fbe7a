package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Napageneral/rolodex/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded schema, for tests that build their own
// databases.
func Schema() string { return schemaSQL }

// Init creates the database file and tables if needed
func Init(cfg *config.Config) error {
	database, err := Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	return Migrate(database)
}

// Migrate applies the schema to an open database.
func Migrate(database *sql.DB) error {
	if _, err := database.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Open opens a connection to the configured database
func Open(cfg *config.Config) (*sql.DB, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenPath(cfg.Store.Driver, dbPath)
}

// OpenPath opens dbPath with the named driver ("sqlite" or "sqlite3").
func OpenPath(driver, dbPath string) (*sql.DB, error) {
	if driver == "" {
		driver = "sqlite"
	}
	database, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas below are per connection, and every pooled connection to
	// ":memory:" would get its own empty database.
	database.SetMaxOpenConns(1)

	// Pragmas for performance + concurrency.
	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	if _, err := database.Exec("PRAGMA journal_mode = WAL"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := database.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if _, err := database.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return database, nil
}

// GetPath returns the path to the database file
func GetPath(cfg *config.Config) (string, error) {
	return cfg.DBPath()
}
