// Package state persists the workspace between sessions: the workbook
// configuration shape and the last-known cell statuses, stored in a
// local SQLite database.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/cellflow/internal/workbook"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// SQLiteStore persists workspace state in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new store instance. If logger is nil, a
// discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the SQLite database and runs pending migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveWorkbook upserts the persisted workbook configuration.
func (s *SQLiteStore) SaveWorkbook(ctx context.Context, cfg workbook.Config) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workbook (id, config, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// LoadWorkbook returns the persisted workbook configuration. The bool
// reports whether one was saved.
func (s *SQLiteStore) LoadWorkbook(ctx context.Context) (workbook.Config, bool, error) {
	if s.db == nil {
		return workbook.Config{}, false, fmt.Errorf("database not opened")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM workbook WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return workbook.Config{}, false, nil
	}
	if err != nil {
		return workbook.Config{}, false, fmt.Errorf("failed to load workbook: %w", err)
	}

	var cfg workbook.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return workbook.Config{}, false, fmt.Errorf("failed to decode workbook: %w", err)
	}
	return cfg, true, nil
}

// SaveStatus upserts one cell's last-known status.
func (s *SQLiteStore) SaveStatus(ctx context.Context, cellID string, status workbook.CellStatus) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cell_status (cell_id, status, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(cell_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		cellID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save status for cell %s: %w", cellID, err)
	}
	return nil
}

// LoadStatuses returns the last-known status of every persisted cell.
func (s *SQLiteStore) LoadStatuses(ctx context.Context) (map[string]workbook.CellStatus, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT cell_id, status FROM cell_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to load statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]workbook.CellStatus)
	for rows.Next() {
		var cellID, raw string
		if err := rows.Scan(&cellID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		var status workbook.CellStatus
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			return nil, fmt.Errorf("failed to decode status for cell %s: %w", cellID, err)
		}
		out[cellID] = status
	}
	return out, rows.Err()
}

// DeleteStatus removes a cell's persisted status.
func (s *SQLiteStore) DeleteStatus(ctx context.Context, cellID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cell_status WHERE cell_id = ?`, cellID)
	if err != nil {
		return fmt.Errorf("failed to delete status for cell %s: %w", cellID, err)
	}
	return nil
}
