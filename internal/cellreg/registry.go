// Package cellreg is the cell capability table: one entry per cell
// type supplying dependency resolution and optional run/rename hooks.
// It is the only place type-specific cell behavior lives.
package cellreg

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// RunOptions controls a single cell run.
type RunOptions struct {
	// Cascade re-runs all downstream cells after a successful run.
	Cascade bool

	// SchemaName overrides the owning sheet's destination schema.
	SchemaName string

	// CacheResults fetches a row count and first result page into the
	// result cache after a successful run.
	CacheResults bool
}

// Runner executes SQL cells. Implemented by the execution engine.
type Runner interface {
	RunSQLCell(ctx context.Context, cellID string, opts RunOptions) error
}

// Renamer repoints a SQL cell's result view. Implemented by the
// execution engine.
type Renamer interface {
	RenameSQLResult(ctx context.Context, cellID, newName string) error
}

// Item describes the capabilities of one cell type.
type Item struct {
	Type string

	// RequiresParser marks types that cannot run without the statement
	// parser collaborator.
	RequiresParser bool

	// FindDependencies resolves in-sheet dependencies textually.
	FindDependencies func(cell workbook.Cell, cellsInSheet map[string]workbook.Cell) []string

	// FindDependenciesAsync resolves dependencies structurally via the
	// statement parser. Nil for types with no async path.
	FindDependenciesAsync func(ctx context.Context, cell workbook.Cell, cellsInSheet map[string]workbook.Cell, parser sqlparse.Parser) ([]string, error)

	// RunCell overrides the default no-op run behavior. Nil for
	// non-executable types.
	RunCell func(ctx context.Context, runner Runner, cellID string, opts RunOptions) error

	// RenameResult handles explicit result renames. Nil for types
	// without a published result.
	RenameResult func(ctx context.Context, renamer Renamer, cellID, newName string) error
}

// Registry maps cell types to their capability items. It implements
// workbook.DependencyResolver.
type Registry struct {
	items map[string]*Item
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Item)}
}

// NewDefault creates a registry with the built-in sql, text, chart, and
// input cell types registered.
func NewDefault() *Registry {
	r := NewRegistry()
	r.Register(sqlItem())
	r.Register(textItem())
	r.Register(chartItem())
	r.Register(inputItem())
	return r
}

// Register adds or replaces a cell type entry.
func (r *Registry) Register(item *Item) {
	r.items[item.Type] = item
}

// Get returns the entry for a cell type.
func (r *Registry) Get(cellType string) (*Item, bool) {
	item, ok := r.items[cellType]
	return item, ok
}

// Types returns the registered cell types.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.items))
	for t := range r.items {
		out = append(out, t)
	}
	return out
}

// FindDependencies implements workbook.DependencyResolver.
func (r *Registry) FindDependencies(cell workbook.Cell, cellsInSheet map[string]workbook.Cell) []string {
	item, ok := r.items[cell.Type]
	if !ok || item.FindDependencies == nil {
		return nil
	}
	return item.FindDependencies(cell, cellsInSheet)
}

// RequiresParser implements workbook.DependencyResolver.
func (r *Registry) RequiresParser(cellType string) bool {
	item, ok := r.items[cellType]
	return ok && item.RequiresParser
}

// FindDependenciesAsync prefers the type's structural resolver when a
// parser is available, falling back to the textual resolver on parse
// failure or when the structural path finds nothing.
func (r *Registry) FindDependenciesAsync(ctx context.Context, cell workbook.Cell, cellsInSheet map[string]workbook.Cell, parser sqlparse.Parser) ([]string, error) {
	item, ok := r.items[cell.Type]
	if !ok {
		return nil, nil
	}
	if item.FindDependenciesAsync != nil && parser != nil {
		deps, err := item.FindDependenciesAsync(ctx, cell, cellsInSheet, parser)
		if err == nil {
			return deps, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if item.FindDependencies == nil {
		return nil, nil
	}
	return item.FindDependencies(cell, cellsInSheet), nil
}

// RunCell dispatches a run to the type's hook.
func (r *Registry) RunCell(ctx context.Context, runner Runner, cell workbook.Cell, opts RunOptions) error {
	item, ok := r.items[cell.Type]
	if !ok {
		return fmt.Errorf("unknown cell type %q", cell.Type)
	}
	if item.RunCell == nil {
		return nil
	}
	return item.RunCell(ctx, runner, cell.ID, opts)
}

// RenameResult dispatches a result rename to the type's hook.
func (r *Registry) RenameResult(ctx context.Context, renamer Renamer, cell workbook.Cell, newName string) error {
	item, ok := r.items[cell.Type]
	if !ok {
		return fmt.Errorf("unknown cell type %q", cell.Type)
	}
	if item.RenameResult == nil {
		return fmt.Errorf("cell type %q has no result to rename", cell.Type)
	}
	return item.RenameResult(ctx, renamer, cell.ID, newName)
}

var _ workbook.DependencyResolver = (*Registry)(nil)
