// Package sqlparse provides the SQL statement parsing collaborator used
// by the execution engine: read-only SELECT validation and structural
// extraction of referenced table names. Parsing itself is delegated to
// the backing database (DuckDB's json_serialize_sql), which only
// serializes SELECT statements, so a successful parse doubles as the
// read-only check.
package sqlparse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/cellflow/pkg/adapter"
)

// ErrParserRequired is returned when a SQL cell operation needs the
// statement parser but none is configured. This is a fatal
// configuration error, not a soft-fallback condition.
var ErrParserRequired = errors.New("sql statement parser not configured")

// ValidationError is returned when SQL fails to parse or is not a
// read-only SELECT statement. The parser's message is preserved
// verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "not a valid SELECT statement"
	}
	return e.Message
}

// ParseResult is a parsed set of SELECT statements as raw AST JSON.
type ParseResult struct {
	Statements []json.RawMessage
}

// Parser validates SQL text and exposes its parsed structure.
type Parser interface {
	// ParseSelect parses sqlText and returns the statement AST.
	// It returns a *ValidationError when the text is not a valid
	// read-only SELECT.
	ParseSelect(ctx context.Context, sqlText string) (*ParseResult, error)
}

// Queryer is the narrow database surface the DuckDB parser needs.
// adapter.Adapter satisfies it.
type Queryer interface {
	Query(ctx context.Context, sql string) (*adapter.Rows, error)
}

// DuckDBParser parses SQL by round-tripping it through DuckDB's
// json_serialize_sql function on the shared connection.
type DuckDBParser struct {
	db     Queryer
	logger *slog.Logger
}

// NewDuckDBParser creates a parser backed by the given connection.
// If logger is nil, a discard logger is used.
func NewDuckDBParser(db Queryer, logger *slog.Logger) *DuckDBParser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBParser{db: db, logger: logger}
}

type serializedSQL struct {
	Error        bool              `json:"error"`
	ErrorType    string            `json:"error_type"`
	ErrorMessage string            `json:"error_message"`
	Statements   []json.RawMessage `json:"statements"`
}

// ParseSelect implements Parser.
func (p *DuckDBParser) ParseSelect(ctx context.Context, sqlText string) (*ParseResult, error) {
	escaped := strings.ReplaceAll(sqlText, "'", "''")
	query := "SELECT json_serialize_sql('" + escaped + "')"

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payload string
	if rows.Next() {
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan serialized statement: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading serialized statement: %w", err)
	}

	var parsed serializedSQL
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode statement AST: %w", err)
	}

	if parsed.Error {
		p.logger.Debug("statement rejected", "error_type", parsed.ErrorType, "message", parsed.ErrorMessage)
		return nil, &ValidationError{Message: parsed.ErrorMessage}
	}

	return &ParseResult{Statements: parsed.Statements}, nil
}

var _ Parser = (*DuckDBParser)(nil)
