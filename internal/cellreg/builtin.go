package cellreg

import (
	"context"
	"regexp"
	"strings"

	"github.com/leapstack-labs/cellflow/internal/sqltext"
	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// sqlItem returns the built-in SQL cell entry. SQL cells depend on
// parameter cells whose variable appears as {{name}} or :name, and on
// other SQL cells whose effective result name or title appears in the
// text. The textual match is a deliberately conservative substring
// heuristic; false positives cause at most a redundant re-run.
func sqlItem() *Item {
	return &Item{
		Type:                  workbook.CellTypeSQL,
		RequiresParser:        true,
		FindDependencies:      findSQLDependencies,
		FindDependenciesAsync: findSQLDependenciesAST,
		RunCell: func(ctx context.Context, runner Runner, cellID string, opts RunOptions) error {
			return runner.RunSQLCell(ctx, cellID, opts)
		},
		RenameResult: func(ctx context.Context, renamer Renamer, cellID, newName string) error {
			return renamer.RenameSQLResult(ctx, cellID, newName)
		},
	}
}

// textItem returns the built-in text cell entry: inert content, no
// dependencies.
func textItem() *Item {
	return &Item{Type: workbook.CellTypeText}
}

// chartItem returns the built-in chart cell entry. A chart depends on
// exactly the cell it was bound to, if any.
func chartItem() *Item {
	return &Item{
		Type: workbook.CellTypeChart,
		FindDependencies: func(cell workbook.Cell, cellsInSheet map[string]workbook.Cell) []string {
			src := cell.Data.SourceCellID
			if src == "" || src == cell.ID {
				return nil
			}
			if _, ok := cellsInSheet[src]; !ok {
				return nil
			}
			return []string{src}
		},
	}
}

// inputItem returns the built-in parameter cell entry. Parameters are
// graph leaves.
func inputItem() *Item {
	return &Item{Type: workbook.CellTypeInput}
}

func findSQLDependencies(cell workbook.Cell, cellsInSheet map[string]workbook.Cell) []string {
	sqlText := cell.Data.SQL
	if sqlText == "" {
		return nil
	}
	lower := strings.ToLower(sqlText)

	var deps []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == cell.ID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		deps = append(deps, id)
	}

	for id, other := range cellsInSheet {
		if id == cell.ID {
			continue
		}
		switch other.Type {
		case workbook.CellTypeInput:
			if other.Data.Input != nil && referencesVariable(sqlText, other.Data.Input.VarName) {
				add(id)
			}
		case workbook.CellTypeSQL:
			name := strings.ToLower(sqltext.EffectiveResultName(other.Data.ResultName, other.Data.Title))
			if name != "" && strings.Contains(lower, name) {
				add(id)
				continue
			}
			title := strings.ToLower(other.Data.Title)
			if title != "" && strings.Contains(lower, title) {
				add(id)
			}
		}
	}
	return deps
}

// referencesVariable reports whether sqlText uses a parameter variable
// as {{name}} (whitespace tolerated) or :name.
func referencesVariable(sqlText, varName string) bool {
	if varName == "" {
		return false
	}
	quoted := regexp.QuoteMeta(varName)
	braced := regexp.MustCompile(`\{\{\s*` + quoted + `\s*\}\}`)
	if braced.MatchString(sqlText) {
		return true
	}
	colon := regexp.MustCompile(`:` + quoted + `\b`)
	return colon.MatchString(sqlText)
}

// findSQLDependenciesAST resolves SQL cell dependencies structurally:
// render the SQL with current parameter values, parse it, collect
// referenced table names, and map each back to an owning cell by
// effective result name or title. Parameter dependencies are still
// detected textually since they vanish after rendering. Zero structural
// matches fall back to the full textual heuristic.
func findSQLDependenciesAST(ctx context.Context, cell workbook.Cell, cellsInSheet map[string]workbook.Cell, parser sqlparse.Parser) ([]string, error) {
	if parser == nil {
		return nil, sqlparse.ErrParserRequired
	}
	sqlText := cell.Data.SQL
	if sqlText == "" {
		return nil, nil
	}

	var inputs []sqltext.RenderInput
	paramBySheet := make(map[string]workbook.Cell)
	for id, other := range cellsInSheet {
		if other.Type == workbook.CellTypeInput && other.Data.Input != nil {
			inputs = append(inputs, sqltext.RenderInput{
				VarName: other.Data.Input.VarName,
				Value:   other.Data.Input.Value,
			})
			paramBySheet[id] = other
		}
	}
	rendered := sqltext.RenderSQLWithInputs(sqlText, inputs)

	result, err := parser.ParseSelect(ctx, rendered)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string)
	for id, other := range cellsInSheet {
		if id == cell.ID || other.Type != workbook.CellTypeSQL {
			continue
		}
		if name := sqltext.EffectiveResultName(other.Data.ResultName, other.Data.Title); name != "" {
			byName[strings.ToLower(name)] = id
		}
		if other.Data.Title != "" {
			byName[strings.ToLower(other.Data.Title)] = id
		}
	}

	var deps []string
	seen := make(map[string]struct{})
	for _, table := range result.ReferencedTables() {
		// Qualified references arrive bare from the parser; strip any
		// schema prefix before matching.
		if idx := strings.LastIndex(table, "."); idx >= 0 {
			table = table[idx+1:]
		}
		id, ok := byName[table]
		if !ok || id == cell.ID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		deps = append(deps, id)
	}

	// Parameter references are textual even on the structural path.
	for id, param := range paramBySheet {
		if param.Data.Input != nil && referencesVariable(sqlText, param.Data.Input.VarName) {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				deps = append(deps, id)
			}
		}
	}

	if len(deps) == 0 {
		return findSQLDependencies(cell, cellsInSheet), nil
	}
	return deps, nil
}
