package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cellflow/internal/workbook"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(nil)
	require.NoError(t, s.Open(":memory:"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkbookRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.LoadWorkbook(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	cfg := workbook.Config{
		Data: map[string]workbook.Cell{
			"a": {ID: "a", Type: workbook.CellTypeSQL, Data: workbook.CellData{Title: "Alpha", SQL: "SELECT 1"}},
		},
		Sheets: map[string]*workbook.Sheet{
			"s1": {ID: "s1", Type: workbook.SheetTypeNotebook, Title: "Main", CellIDs: []string{"a"}},
		},
		SheetOrder:     []string{"s1"},
		CurrentSheetID: "s1",
	}
	require.NoError(t, s.SaveWorkbook(ctx, cfg))

	loaded, found, err := s.LoadWorkbook(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s1", loaded.CurrentSheetID)
	assert.Equal(t, "Alpha", loaded.Data["a"].Data.Title)

	// Saving again overwrites the single row.
	cfg.CurrentSheetID = ""
	require.NoError(t, s.SaveWorkbook(ctx, cfg))
	loaded, _, err = s.LoadWorkbook(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.CurrentSheetID)
}

func TestStatusRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	status := workbook.CellStatus{
		Type:             workbook.CellTypeSQL,
		Status:           workbook.StatusSuccess,
		ResultName:       "result_a",
		ResultView:       "memory.sheet_1.result_a",
		ReferencedTables: []string{"orders"},
		LastRunTime:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveStatus(ctx, "a", status))

	statuses, err := s.LoadStatuses(ctx)
	require.NoError(t, err)
	require.Contains(t, statuses, "a")
	assert.Equal(t, status, statuses["a"])

	require.NoError(t, s.DeleteStatus(ctx, "a"))
	statuses, err = s.LoadStatuses(ctx)
	require.NoError(t, err)
	assert.NotContains(t, statuses, "a")
}
