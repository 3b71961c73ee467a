// Package adapter provides database adapter interfaces and shared
// implementations for CellFlow's execution engine.
//
// This package contains the public contract that all database adapters
// must implement. Concrete adapter implementations are in pkg/adapters/
// subdirectories and register themselves via init().
package adapter

import (
	"context"
	"database/sql"
)

// Config holds connection configuration for a database adapter.
type Config struct {
	// Type selects the registered adapter (duckdb, postgres).
	Type string `koanf:"type"`

	// Path is the database file path for file-based engines.
	// Empty means in-memory.
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`

	// Options holds driver-specific options (e.g. sslmode).
	Options map[string]string `koanf:"options"`
}

// Column describes one column of a table or result.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata describes a table or view in the connected database.
type TableMetadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows for adapter consumers.
type Rows struct {
	*sql.Rows
}

// Adapter defines the interface that all database adapters must
// implement. Query and Exec honor context cancellation; the engine
// relies on that for per-cell aborts.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// GetTableMetadata retrieves metadata for a specified table or view.
	GetTableMetadata(ctx context.Context, table string) (*TableMetadata, error)

	// CurrentDatabase returns the name of the connected database, used
	// to compose fully qualified view names. May be empty for engines
	// without a catalog level.
	CurrentDatabase() string
}
