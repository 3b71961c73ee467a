package engine

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/cellflow/internal/sqltext"
	"github.com/leapstack-labs/cellflow/internal/workbook"
)

// RenameResult repoints a cell's published result to a new name through
// its registry hook.
func (e *Engine) RenameResult(ctx context.Context, cellID, newName string) error {
	cell, ok := e.store.Cell(cellID)
	if !ok {
		return fmt.Errorf("cell %q not found", cellID)
	}
	return e.registry.RenameResult(ctx, e, cell, newName)
}

// RenameSQLResult republishes a SQL cell's result view under a new
// name: the new view is created first from the same rendered SQL, the
// old view is dropped second, and only then is status repointed. There
// is never a window without a valid view.
func (e *Engine) RenameSQLResult(ctx context.Context, cellID, newName string) error {
	cell, ok := e.store.Cell(cellID)
	if !ok {
		return fmt.Errorf("cell %q not found", cellID)
	}
	sheetID, ok := e.store.SheetOf(cellID)
	if !ok {
		return fmt.Errorf("cell %q is not owned by any sheet", cellID)
	}
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}

	schema := effectiveSchemaName(sheet)
	oldName := sqltext.EffectiveResultName(cell.Data.ResultName, cell.Data.Title)
	name := sqltext.ToValidIdentifier(newName)
	if name == oldName {
		return nil
	}

	qualified := e.renderAndQualify(sheetID, cell, schema)
	newRef := sqltext.EscapeID(schema) + "." + sqltext.EscapeID(name)
	oldRef := sqltext.EscapeID(schema) + "." + sqltext.EscapeID(oldName)

	if err := e.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+sqltext.EscapeID(schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	if err := e.db.Exec(ctx, "CREATE OR REPLACE VIEW "+newRef+" AS "+qualified); err != nil {
		return fmt.Errorf("failed to create view %s: %w", newRef, err)
	}
	if err := e.db.Exec(ctx, "DROP VIEW IF EXISTS "+oldRef); err != nil {
		return fmt.Errorf("failed to drop view %s: %w", oldRef, err)
	}

	if err := e.store.UpdateCell(cellID, func(d *workbook.CellData) {
		d.ResultName = name
	}); err != nil {
		return err
	}

	resultView := e.qualifiedViewName(schema, name)
	e.store.UpdateStatus(cellID, func(st *workbook.CellStatus) {
		st.ResultName = name
		st.ResultView = resultView
	})

	e.logger.Debug("result renamed", "cell", cellID, "from", oldName, "to", name)
	return nil
}
