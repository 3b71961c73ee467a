package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/results"
	"github.com/leapstack-labs/cellflow/internal/sqltext"
	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// RunCell executes one cell through its registry hook. Non-executable
// cell types are a no-op.
func (e *Engine) RunCell(ctx context.Context, cellID string, opts cellreg.RunOptions) error {
	cell, ok := e.store.Cell(cellID)
	if !ok {
		return fmt.Errorf("cell %q not found", cellID)
	}
	return e.registry.RunCell(ctx, e, cell, opts)
}

// RunSQLCell executes a SQL cell: render parameters, qualify same-sheet
// result names, validate the statement, materialize the result view,
// record status, optionally cache a first page, and optionally cascade
// to downstream cells. The cell's status always leaves running, landing
// on success, error, or cancel.
func (e *Engine) RunSQLCell(ctx context.Context, cellID string, opts cellreg.RunOptions) error {
	if e.parser == nil {
		return fmt.Errorf("cannot run cell %q: %w", cellID, sqlparse.ErrParserRequired)
	}

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

	schema := opts.SchemaName
	if schema == "" {
		schema = effectiveSchemaName(sheet)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.store.TrackRun(cellID, cancel)
	defer func() {
		cancel()
		e.store.ClearRun(cellID)
	}()

	qualified := e.renderAndQualify(sheetID, cell, schema)

	// Prior referencedTables stay visible until overwritten on success.
	e.store.UpdateStatus(cellID, func(st *workbook.CellStatus) {
		st.Status = workbook.StatusRunning
		st.LastError = ""
	})

	e.logger.Debug("running cell", "cell", cellID, "sheet", sheetID, "schema", schema)

	fail := func(err error) error {
		if runCtx.Err() != nil {
			e.store.UpdateStatus(cellID, func(st *workbook.CellStatus) {
				st.Status = workbook.StatusCancel
			})
			e.logger.Debug("cell run cancelled", "cell", cellID)
			return fmt.Errorf("cell %q run cancelled: %w", cellID, context.Canceled)
		}
		e.store.UpdateStatus(cellID, func(st *workbook.CellStatus) {
			st.Status = workbook.StatusError
			st.LastError = err.Error()
		})
		e.logger.Debug("cell run failed", "cell", cellID, "error", err)
		return err
	}

	if err := runCtx.Err(); err != nil {
		return fail(err)
	}
	parsed, err := e.parser.ParseSelect(runCtx, qualified)
	if err != nil {
		return fail(err)
	}

	if err := runCtx.Err(); err != nil {
		return fail(err)
	}
	if err := e.db.Exec(runCtx, "CREATE SCHEMA IF NOT EXISTS "+sqltext.EscapeID(schema)); err != nil {
		return fail(fmt.Errorf("failed to create schema %s: %w", schema, err))
	}

	name := sqltext.EffectiveResultName(cell.Data.ResultName, cell.Data.Title)
	viewRef := sqltext.EscapeID(schema) + "." + sqltext.EscapeID(name)

	if err := runCtx.Err(); err != nil {
		return fail(err)
	}
	if err := e.db.Exec(runCtx, "CREATE OR REPLACE VIEW "+viewRef+" AS "+qualified); err != nil {
		return fail(fmt.Errorf("failed to create view %s: %w", viewRef, err))
	}

	// Refresh the sheet's derived graph so status consumers see the
	// cell's recomputed outgoing dependencies.
	if _, err := e.BuildDependencyGraphAsync(runCtx, sheetID); err != nil {
		return fail(err)
	}

	resultView := e.qualifiedViewName(schema, name)
	referenced := parsed.ReferencedTables()
	e.store.UpdateStatus(cellID, func(st *workbook.CellStatus) {
		st.Status = workbook.StatusSuccess
		st.ResultName = name
		st.ResultView = resultView
		st.ReferencedTables = referenced
		st.LastError = ""
		st.LastRunTime = time.Now()
	})

	if opts.CacheResults && e.results != nil {
		if err := runCtx.Err(); err != nil {
			return fail(err)
		}
		total, err := results.CountRows(runCtx, e.db, viewRef)
		if err != nil {
			return fail(err)
		}
		if err := runCtx.Err(); err != nil {
			return fail(err)
		}
		page, err := results.FetchPage(runCtx, e.db, viewRef, total,
			results.Pagination{PageSize: results.DefaultPageSize}, results.Sorting{})
		if err != nil {
			return fail(err)
		}
		e.results.Set(cellID, page)
	}

	if opts.Cascade {
		// Re-resolve ownership: sheet membership can change mid-run.
		freshSheetID, ok := e.store.SheetOf(cellID)
		if !ok {
			return nil
		}
		child := opts
		child.Cascade = false
		child.SchemaName = ""
		return e.RunDownstream(ctx, freshSheetID, cellID, child)
	}
	return nil
}

// renderAndQualify substitutes current parameter values into the cell's
// SQL and schema-qualifies references to other same-sheet result names.
func (e *Engine) renderAndQualify(sheetID string, cell workbook.Cell, schema string) string {
	var inputs []sqltext.RenderInput
	for _, param := range e.store.ParameterCells(sheetID) {
		inputs = append(inputs, sqltext.RenderInput{
			VarName: param.Data.Input.VarName,
			Value:   param.Data.Input.Value,
		})
	}
	rendered := sqltext.RenderSQLWithInputs(cell.Data.SQL, inputs)

	var names []string
	for id, other := range e.store.CellsInSheet(sheetID) {
		if id == cell.ID || other.Type != workbook.CellTypeSQL {
			continue
		}
		if name := sqltext.EffectiveResultName(other.Data.ResultName, other.Data.Title); name != "" {
			names = append(names, name)
		}
	}
	return sqltext.QualifySheetLocalResultNames(rendered, schema, names)
}
