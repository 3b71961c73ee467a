package cellreg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

func sqlCell(id, title, resultName, sqlText string) workbook.Cell {
	return workbook.Cell{
		ID:   id,
		Type: workbook.CellTypeSQL,
		Data: workbook.CellData{Title: title, ResultName: resultName, SQL: sqlText},
	}
}

func inputCell(id, varName string, value any) workbook.Cell {
	return workbook.Cell{
		ID:   id,
		Type: workbook.CellTypeInput,
		Data: workbook.CellData{Input: &workbook.InputData{Kind: workbook.InputKindText, VarName: varName, Value: value}},
	}
}

func TestSQLDependsOnParameterVariable(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"q": sqlCell("q", "Filtered", "", "SELECT * FROM orders WHERE region = {{ region }}"),
		"p": inputCell("p", "region", "west"),
	}

	deps := r.FindDependencies(cells["q"], cells)
	assert.Equal(t, []string{"p"}, deps)
}

func TestSQLDependsOnColonVariable(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"q": sqlCell("q", "Filtered", "", "SELECT * FROM orders WHERE region = :region"),
		"p": inputCell("p", "region", "west"),
	}

	deps := r.FindDependencies(cells["q"], cells)
	assert.Equal(t, []string{"p"}, deps)

	// :regional must not match the shorter variable name boundary.
	cells["q"] = sqlCell("q", "Filtered", "", "SELECT :regional")
	cells["p"] = inputCell("p", "region2", "x")
	assert.Empty(t, r.FindDependencies(cells["q"], cells))
}

func TestSQLDependsOnResultName(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"a": sqlCell("a", "Base Orders", "orders_base", "SELECT 1"),
		"b": sqlCell("b", "Derived", "", "SELECT * FROM ORDERS_BASE"),
	}

	deps := r.FindDependencies(cells["b"], cells)
	assert.Equal(t, []string{"a"}, deps)
}

func TestSQLDependsOnTitleFallback(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"a": sqlCell("a", "Monthly Totals", "", "SELECT 1"),
		"b": sqlCell("b", "Derived", "", "SELECT * FROM monthly_totals"),
	}

	// Title "Monthly Totals" derives result name monthly_totals.
	deps := r.FindDependencies(cells["b"], cells)
	assert.Equal(t, []string{"a"}, deps)
}

func TestChartDependsOnBoundCell(t *testing.T) {
	r := NewDefault()

	chart := workbook.Cell{
		ID:   "c",
		Type: workbook.CellTypeChart,
		Data: workbook.CellData{SourceCellID: "a"},
	}
	cells := map[string]workbook.Cell{
		"c": chart,
		"a": sqlCell("a", "Base", "", "SELECT 1"),
	}

	assert.Equal(t, []string{"a"}, r.FindDependencies(chart, cells))

	// A binding outside the sheet resolves to nothing.
	delete(cells, "a")
	assert.Empty(t, r.FindDependencies(chart, cells))
}

func TestLeafTypesHaveNoDependencies(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"p": inputCell("p", "x", 1),
		"t": {ID: "t", Type: workbook.CellTypeText, Data: workbook.CellData{Text: "notes about orders_base"}},
	}

	assert.Empty(t, r.FindDependencies(cells["p"], cells))
	assert.Empty(t, r.FindDependencies(cells["t"], cells))
}

func TestRequiresParser(t *testing.T) {
	r := NewDefault()
	assert.True(t, r.RequiresParser(workbook.CellTypeSQL))
	assert.False(t, r.RequiresParser(workbook.CellTypeText))
	assert.False(t, r.RequiresParser("unknown"))
}

// stubParser returns a canned AST for every query.
type stubParser struct {
	tables []string
	err    error
}

func (p *stubParser) ParseSelect(ctx context.Context, sqlText string) (*sqlparse.ParseResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	var refs []json.RawMessage
	for _, table := range p.tables {
		raw, _ := json.Marshal(map[string]string{"table_name": table})
		refs = append(refs, raw)
	}
	combined, _ := json.Marshal(map[string]any{"refs": refs})
	return &sqlparse.ParseResult{Statements: []json.RawMessage{combined}}, nil
}

func TestFindDependenciesAsyncPrefersAST(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"a": sqlCell("a", "Base", "orders_base", "SELECT 1"),
		"b": sqlCell("b", "Derived", "", "SELECT * FROM orders_base"),
	}

	deps, err := r.FindDependenciesAsync(context.Background(), cells["b"], cells, &stubParser{tables: []string{"orders_base"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deps)
}

func TestFindDependenciesAsyncFallsBackOnZeroMatches(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"a": sqlCell("a", "Base", "orders_base", "SELECT 1"),
		"b": sqlCell("b", "Derived", "", "SELECT * FROM orders_base"),
	}

	// Parser sees only an unrelated table; textual heuristic still
	// finds the reference.
	deps, err := r.FindDependenciesAsync(context.Background(), cells["b"], cells, &stubParser{tables: []string{"raw_events"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deps)
}

func TestFindDependenciesAsyncFallsBackOnParseError(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"a": sqlCell("a", "Base", "orders_base", "SELECT 1"),
		"b": sqlCell("b", "Derived", "", "SELECT * FROM orders_base"),
	}

	deps, err := r.FindDependenciesAsync(context.Background(), cells["b"], cells, &stubParser{err: errors.New("parse failed")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deps)
}

func TestFindDependenciesAsyncHonorsCancellation(t *testing.T) {
	r := NewDefault()

	cells := map[string]workbook.Cell{
		"b": sqlCell("b", "Derived", "", "SELECT * FROM orders_base"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.FindDependenciesAsync(ctx, cells["b"], cells, &stubParser{err: context.Canceled})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCellDispatch(t *testing.T) {
	r := NewDefault()

	var ran string
	runner := runnerFunc(func(ctx context.Context, cellID string, opts RunOptions) error {
		ran = cellID
		return nil
	})

	cell := sqlCell("a", "Base", "", "SELECT 1")
	require.NoError(t, r.RunCell(context.Background(), runner, cell, RunOptions{}))
	assert.Equal(t, "a", ran)

	// Non-executable types are a no-op.
	ran = ""
	text := workbook.Cell{ID: "t", Type: workbook.CellTypeText}
	require.NoError(t, r.RunCell(context.Background(), runner, text, RunOptions{}))
	assert.Empty(t, ran)

	err := r.RunCell(context.Background(), runner, workbook.Cell{ID: "u", Type: "mystery"}, RunOptions{})
	assert.Error(t, err)
}

type runnerFunc func(ctx context.Context, cellID string, opts RunOptions) error

func (f runnerFunc) RunSQLCell(ctx context.Context, cellID string, opts RunOptions) error {
	return f(ctx, cellID, opts)
}
