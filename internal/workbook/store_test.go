package workbook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// fakeResolver resolves dependencies from a fixed map and treats sql
// cells as parser-requiring.
type fakeResolver struct {
	deps map[string][]string
}

func (r *fakeResolver) FindDependencies(cell Cell, cellsInSheet map[string]Cell) []string {
	var out []string
	for _, dep := range r.deps[cell.ID] {
		if _, ok := cellsInSheet[dep]; ok {
			out = append(out, dep)
		}
	}
	return out
}

func (r *fakeResolver) RequiresParser(cellType string) bool {
	return cellType == CellTypeSQL
}

func newTestStore(t *testing.T, deps map[string][]string) *Store {
	t.Helper()
	s := New(&fakeResolver{deps: deps}, nil)
	s.SetParserAvailable(true)
	return s
}

func TestAddCellSingleOwnership(t *testing.T) {
	s := newTestStore(t, nil)

	sheetA, err := s.AddSheet(&Sheet{Title: "A"})
	require.NoError(t, err)
	sheetB, err := s.AddSheet(&Sheet{Title: "B"})
	require.NoError(t, err)

	cellID, err := s.AddCell(sheetA, Cell{ID: "x", Type: CellTypeText}, -1)
	require.NoError(t, err)
	require.Equal(t, "x", cellID)

	_, err = s.AddCell(sheetB, Cell{ID: "x", Type: CellTypeText}, -1)
	require.NoError(t, err)

	a, _ := s.Sheet(sheetA)
	b, _ := s.Sheet(sheetB)
	assert.NotContains(t, a.CellIDs, "x")
	assert.Equal(t, []string{"x"}, b.CellIDs)

	owner, ok := s.SheetOf("x")
	require.True(t, ok)
	assert.Equal(t, sheetB, owner)
}

func TestAddCellMissingParser(t *testing.T) {
	s := New(&fakeResolver{}, nil)
	sheetID, err := s.AddSheet(&Sheet{Title: "A"})
	require.NoError(t, err)

	_, err = s.AddCell(sheetID, Cell{Type: CellTypeSQL, Data: CellData{SQL: "SELECT 1"}}, -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sqlparse.ErrParserRequired))

	// Non-SQL cells are unaffected.
	_, err = s.AddCell(sheetID, Cell{Type: CellTypeText}, -1)
	assert.NoError(t, err)
}

func TestAddCellInsertIndex(t *testing.T) {
	s := newTestStore(t, nil)
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})

	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeText}, -1)
	require.NoError(t, err)
	_, err = s.AddCell(sheetID, Cell{ID: "c", Type: CellTypeText}, -1)
	require.NoError(t, err)
	_, err = s.AddCell(sheetID, Cell{ID: "b", Type: CellTypeText}, 1)
	require.NoError(t, err)

	sheet, _ := s.Sheet(sheetID)
	assert.Equal(t, []string{"a", "b", "c"}, sheet.CellIDs)
}

func TestRemoveSheetCascades(t *testing.T) {
	s := newTestStore(t, nil)
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})
	otherID, _ := s.AddSheet(&Sheet{Title: "B"})

	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeSQL}, -1)
	require.NoError(t, err)
	_, err = s.AddCell(sheetID, Cell{ID: "b", Type: CellTypeText}, -1)
	require.NoError(t, err)

	cancelled := false
	s.TrackRun("a", func() { cancelled = true })

	require.NoError(t, s.RemoveSheet(sheetID))

	assert.True(t, cancelled)
	_, ok := s.Cell("a")
	assert.False(t, ok)
	_, ok = s.Status("a")
	assert.False(t, ok)
	_, ok = s.Cell("b")
	assert.False(t, ok)
	assert.False(t, s.CancelCell("a"))

	// The removed sheet was current; the remaining sheet is promoted.
	assert.Equal(t, otherID, s.CurrentSheetID())
	assert.Equal(t, []string{otherID}, s.SheetOrder())
}

func TestRemoveCellFromSheet(t *testing.T) {
	s := newTestStore(t, map[string][]string{"b": {"a"}})
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})

	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeText}, -1)
	require.NoError(t, err)
	_, err = s.AddCell(sheetID, Cell{ID: "b", Type: CellTypeText}, -1)
	require.NoError(t, err)

	sheet, _ := s.Sheet(sheetID)
	require.Len(t, sheet.Edges, 1)

	require.NoError(t, s.RemoveCellFromSheet(sheetID, "a"))

	sheet, _ = s.Sheet(sheetID)
	assert.Equal(t, []string{"b"}, sheet.CellIDs)
	assert.Empty(t, sheet.Edges)
	_, ok := s.Cell("a")
	assert.False(t, ok)
}

func TestDependencyEdgesDerived(t *testing.T) {
	s := newTestStore(t, map[string][]string{"b": {"a"}})
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})

	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeText}, -1)
	require.NoError(t, err)
	_, err = s.AddCell(sheetID, Cell{ID: "b", Type: CellTypeText}, -1)
	require.NoError(t, err)

	sheet, _ := s.Sheet(sheetID)
	require.Len(t, sheet.Edges, 1)
	assert.Equal(t, "a", sheet.Edges[0].Source)
	assert.Equal(t, "b", sheet.Edges[0].Target)
	assert.Equal(t, EdgeKindDependency, sheet.Edges[0].Kind)
}

func TestUpdateCellPatchesData(t *testing.T) {
	s := newTestStore(t, nil)
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})
	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeSQL, Data: CellData{SQL: "SELECT 1"}}, -1)
	require.NoError(t, err)

	require.NoError(t, s.UpdateCell("a", func(d *CellData) {
		d.SQL = "SELECT 2"
	}))

	cell, ok := s.Cell("a")
	require.True(t, ok)
	assert.Equal(t, "SELECT 2", cell.Data.SQL)

	assert.Error(t, s.UpdateCell("missing", func(d *CellData) {}))
}

func TestCancelCell(t *testing.T) {
	s := newTestStore(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.TrackRun("a", cancel)

	require.True(t, s.CancelCell("a"))
	assert.Error(t, ctx.Err())

	s.ClearRun("a")
	assert.False(t, s.CancelCell("a"))
}

func TestSetSheetOrderValidation(t *testing.T) {
	s := newTestStore(t, nil)
	a, _ := s.AddSheet(&Sheet{Title: "A"})
	b, _ := s.AddSheet(&Sheet{Title: "B"})

	require.NoError(t, s.SetSheetOrder([]string{b, a}))
	assert.Equal(t, []string{b, a}, s.SheetOrder())

	assert.Error(t, s.SetSheetOrder([]string{a}))
	assert.Error(t, s.SetSheetOrder([]string{a, "nope"}))
	assert.Error(t, s.SetSheetOrder([]string{a, a}))
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	sheetID, _ := s.AddSheet(&Sheet{Title: "A", SchemaName: "sheet_a"})
	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeSQL, Data: CellData{Title: "Orders", SQL: "SELECT 1"}}, -1)
	require.NoError(t, err)

	cfg := s.Config()

	s2 := newTestStore(t, nil)
	require.NoError(t, s2.Load(cfg))

	assert.Equal(t, sheetID, s2.CurrentSheetID())
	cell, ok := s2.Cell("a")
	require.True(t, ok)
	assert.Equal(t, "Orders", cell.Data.Title)

	st, ok := s2.Status("a")
	require.True(t, ok)
	assert.Equal(t, StatusIdle, st.Status)
}

func TestLoadEnforcesSingleOwnership(t *testing.T) {
	cfg := Config{
		Data: map[string]Cell{
			"x": {ID: "x", Type: CellTypeText},
		},
		Sheets: map[string]*Sheet{
			"s1": {ID: "s1", Type: SheetTypeNotebook, CellIDs: []string{"x"}},
			"s2": {ID: "s2", Type: SheetTypeNotebook, CellIDs: []string{"x"}},
		},
		SheetOrder:     []string{"s1", "s2"},
		CurrentSheetID: "s1",
	}

	s := newTestStore(t, nil)
	require.NoError(t, s.Load(cfg))

	s1, _ := s.Sheet("s1")
	s2, _ := s.Sheet("s2")
	assert.Equal(t, []string{"x"}, s1.CellIDs)
	assert.Empty(t, s2.CellIDs)
}

func TestUpdateStatus(t *testing.T) {
	s := newTestStore(t, nil)
	sheetID, _ := s.AddSheet(&Sheet{Title: "A"})
	_, err := s.AddCell(sheetID, Cell{ID: "a", Type: CellTypeSQL}, -1)
	require.NoError(t, err)

	ok := s.UpdateStatus("a", func(st *CellStatus) {
		st.Status = StatusRunning
	})
	require.True(t, ok)

	st, _ := s.Status("a")
	assert.Equal(t, StatusRunning, st.Status)

	assert.False(t, s.UpdateStatus("missing", func(st *CellStatus) {}))
}
