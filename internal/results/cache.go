// Package results caches the first page and row count of each SQL
// cell's result view, and fetches further pages on demand. It is an
// optional collaborator of the execution engine; core scheduling does
// not depend on it.
package results

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/leapstack-labs/cellflow/pkg/adapter"
)

// DefaultPageSize is the number of rows fetched into the cache after a
// successful run.
const DefaultPageSize = 100

// CellResult is a page of rows from a cell's result view plus the
// view's total row count.
type CellResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	TotalRows int64    `json:"totalRows"`
}

// Pagination selects a result page.
type Pagination struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
}

// Sorting orders a result page by one column.
type Sorting struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// Cache holds the latest result per cell id. Safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	byCell map[string]*CellResult
}

// NewCache creates an empty result cache.
func NewCache() *Cache {
	return &Cache{byCell: make(map[string]*CellResult)}
}

// Set stores a cell's result, replacing any previous one.
func (c *Cache) Set(cellID string, result *CellResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCell[cellID] = result
}

// Get returns a cell's cached result.
func (c *Cache) Get(cellID string) (*CellResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.byCell[cellID]
	return result, ok
}

// Delete drops a cell's cached result.
func (c *Cache) Delete(cellID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byCell, cellID)
}

// Clear drops every cached result.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCell = make(map[string]*CellResult)
}

// Queryer is the database surface the page fetcher needs.
// adapter.Adapter satisfies it.
type Queryer interface {
	Query(ctx context.Context, sql string) (*adapter.Rows, error)
}

// FetchPage queries one page of a result view with optional sorting.
// totalRows is carried over from the caller since paging does not
// recount.
func FetchPage(ctx context.Context, db Queryer, resultView string, totalRows int64, page Pagination, sort Sorting) (*CellResult, error) {
	if page.PageSize <= 0 {
		page.PageSize = DefaultPageSize
	}
	if page.PageIndex < 0 {
		page.PageIndex = 0
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(resultView)
	if sort.Column != "" {
		// The sort column is caller-supplied; always quote it.
		sb.WriteString(" ORDER BY ")
		sb.WriteString(`"` + strings.ReplaceAll(sort.Column, `"`, `""`) + `"`)
		if sort.Desc {
			sb.WriteString(" DESC")
		}
	}
	fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", page.PageSize, page.PageIndex*page.PageSize)

	rows, err := db.Query(ctx, sb.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := Collect(rows)
	if err != nil {
		return nil, err
	}
	result.TotalRows = totalRows
	return result, nil
}

// CountRows returns the total row count of a result view.
func CountRows(ctx context.Context, db Queryer, resultView string) (int64, error) {
	rows, err := db.Query(ctx, "SELECT COUNT(*) FROM "+resultView)
	if err != nil {
		return 0, fmt.Errorf("failed to count result rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to scan row count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// Collect drains a row set into a CellResult page.
func Collect(rows *adapter.Rows) (*CellResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	result := &CellResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
