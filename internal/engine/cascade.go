package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/dag"
)

// RunAllCells executes every cell in a sheet in topological order,
// strictly one at a time. Downstream cells may read views written by
// upstream runs, so there is no overlap. The first failing or cancelled
// cell halts the remainder; cells not yet reached keep their last-known
// status.
func (e *Engine) RunAllCells(ctx context.Context, sheetID string, opts cellreg.RunOptions) error {
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}

	g, err := e.BuildDependencyGraphAsync(ctx, sheetID)
	if err != nil {
		return err
	}

	roots := g.Roots(sheet.CellIDs)
	order := dag.TopologicalOrder(roots, g.Dependencies, g.Dependents, nil)

	e.logger.Debug("running all cells", "sheet", sheetID, "cells", len(order))

	opts.Cascade = false
	for _, cellID := range order {
		if err := e.RunCell(ctx, cellID, opts); err != nil {
			return err
		}
	}
	return nil
}

// RunDownstream executes every cell transitively downstream of
// sourceID, in topological order restricted to the reachable set. The
// source itself is never re-run. An empty reachable set is a no-op.
func (e *Engine) RunDownstream(ctx context.Context, sheetID, sourceID string, opts cellreg.RunOptions) error {
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}

	g, err := e.BuildDependencyGraphAsync(ctx, sheetID)
	if err != nil {
		return err
	}

	reachable := dag.CollectReachable(sourceID, g.Dependents)
	if len(reachable) == 0 {
		return nil
	}

	roots := dag.SubRoots(sheet.CellIDs, reachable, g.Dependencies)
	order := dag.TopologicalOrder(roots, g.Dependencies, g.Dependents, reachable)

	e.logger.Debug("running downstream cells", "sheet", sheetID, "source", sourceID, "cells", len(order))

	opts.Cascade = false
	for _, cellID := range order {
		if err := e.RunCell(ctx, cellID, opts); err != nil {
			return err
		}
	}
	return nil
}

// GetDownstream returns the ids downstream of a cell in the order a
// cascade would run them. The cell itself is excluded.
func (e *Engine) GetDownstream(sheetID, cellID string) []string {
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return nil
	}

	g := e.BuildDependencyGraph(sheetID)
	reachable := dag.CollectReachable(cellID, g.Dependents)
	if len(reachable) == 0 {
		return nil
	}

	roots := dag.SubRoots(sheet.CellIDs, reachable, g.Dependencies)
	return dag.TopologicalOrder(roots, g.Dependencies, g.Dependents, reachable)
}
