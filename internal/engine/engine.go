// Package engine is the execution orchestrator: it renders and
// qualifies SQL cells, materializes their result views on the shared
// connection, tracks per-cell run status and cancellation, and cascades
// re-execution through each sheet's dependency graph in topological
// order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/results"
	"github.com/leapstack-labs/cellflow/internal/sqltext"
	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/adapter"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// Engine orchestrates cell execution against one shared database
// connection. Cascades are strictly sequential; serialization over the
// connection comes from the cascade loop, not from locks.
type Engine struct {
	store    *workbook.Store
	registry *cellreg.Registry
	db       adapter.Adapter
	parser   sqlparse.Parser
	results  *results.Cache
	logger   *slog.Logger
}

// New wires an engine. parser and cache may be nil: without a parser,
// SQL cells cannot run; without a cache, result pages are not retained.
// If logger is nil, a discard logger is used.
func New(store *workbook.Store, registry *cellreg.Registry, db adapter.Adapter, parser sqlparse.Parser, cache *results.Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	store.SetParserAvailable(parser != nil)
	return &Engine{
		store:    store,
		registry: registry,
		db:       db,
		parser:   parser,
		results:  cache,
		logger:   logger,
	}
}

// Store returns the engine's workspace store.
func (e *Engine) Store() *workbook.Store {
	return e.store
}

// Results returns the engine's result cache, or nil.
func (e *Engine) Results() *results.Cache {
	return e.results
}

// CancelCell aborts a cell's in-flight run, if any.
func (e *Engine) CancelCell(cellID string) bool {
	return e.store.CancelCell(cellID)
}

// FetchResultPage re-queries one page of a cell's result view.
func (e *Engine) FetchResultPage(ctx context.Context, cellID string, page results.Pagination, sort results.Sorting) (*results.CellResult, error) {
	status, ok := e.store.Status(cellID)
	if !ok || status.ResultView == "" {
		return nil, fmt.Errorf("cell %q has no result view", cellID)
	}
	var total int64
	if cached, ok := e.results.Get(cellID); ok {
		total = cached.TotalRows
	}
	return results.FetchPage(ctx, e.db, status.ResultView, total, page, sort)
}

// effectiveSchemaName returns a sheet's destination schema: the
// explicit override when set, otherwise a stable identifier derived
// from the sheet id.
func effectiveSchemaName(sheet *workbook.Sheet) string {
	if sheet.SchemaName != "" {
		return sheet.SchemaName
	}
	return strings.ToLower(sqltext.ToValidIdentifier(sheet.ID))
}

// qualifiedViewName composes schema.name, prefixed with the connected
// catalog when the adapter reports one.
func (e *Engine) qualifiedViewName(schema, name string) string {
	qualified := sqltext.EscapeID(schema) + "." + sqltext.EscapeID(name)
	if db := e.db.CurrentDatabase(); db != "" {
		return sqltext.EscapeID(db) + "." + qualified
	}
	return qualified
}
