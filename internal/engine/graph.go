package engine

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"

	"github.com/leapstack-labs/cellflow/internal/dag"
	"github.com/leapstack-labs/cellflow/internal/workbook"
)

// BuildDependencyGraph assembles the dependency graph for one sheet
// using the textual resolvers. Only cells owned by the sheet are
// visited; resolver output outside the sheet is dropped. A missing
// sheet yields an empty graph so read paths stay resilient. A complete
// cached snapshot whose content hashes still match is reused.
func (e *Engine) BuildDependencyGraph(sheetID string) *dag.Graph {
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return dag.NewGraph()
	}
	cells := e.store.CellsInSheet(sheetID)

	if cache, ok := e.store.GraphCacheFor(sheetID); ok && cacheIsCurrent(cache, cells) {
		return graphFromCache(cache)
	}

	g := dag.NewGraph()
	for _, cellID := range sheet.CellIDs {
		cell, ok := cells[cellID]
		if !ok {
			continue
		}
		g.AddNode(cellID)
		for _, dep := range e.registry.FindDependencies(cell, cells) {
			if _, inSheet := cells[dep]; inSheet {
				g.AddDependency(cellID, dep)
			}
		}
	}

	e.store.SetGraphCache(sheetID, cacheFromGraph(g, cells))
	return g
}

// BuildDependencyGraphAsync assembles the dependency graph preferring
// the structural (parser-backed) resolvers.
func (e *Engine) BuildDependencyGraphAsync(ctx context.Context, sheetID string) (*dag.Graph, error) {
	sheet, ok := e.store.Sheet(sheetID)
	if !ok {
		return dag.NewGraph(), nil
	}
	cells := e.store.CellsInSheet(sheetID)

	g := dag.NewGraph()
	for _, cellID := range sheet.CellIDs {
		cell, ok := cells[cellID]
		if !ok {
			continue
		}
		g.AddNode(cellID)
		deps, err := e.registry.FindDependenciesAsync(ctx, cell, cells, e.parser)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if _, inSheet := cells[dep]; inSheet {
				g.AddDependency(cellID, dep)
			}
		}
	}

	e.store.SetGraphCache(sheetID, cacheFromGraph(g, cells))
	return g, nil
}

// cacheIsCurrent reports whether a snapshot was built from exactly the
// given cell contents. Snapshots are complete or absent, never
// partially stale.
func cacheIsCurrent(cache *workbook.GraphCache, cells map[string]workbook.Cell) bool {
	if len(cache.ContentHashByCell) != len(cells) {
		return false
	}
	for id, cell := range cells {
		if cache.ContentHashByCell[id] != cellContentHash(cell) {
			return false
		}
	}
	return true
}

func graphFromCache(cache *workbook.GraphCache) *dag.Graph {
	g := dag.NewGraph()
	for id, deps := range cache.Dependencies {
		g.AddNode(id)
		for _, dep := range deps {
			g.AddDependency(id, dep)
		}
	}
	return g
}

func cacheFromGraph(g *dag.Graph, cells map[string]workbook.Cell) *workbook.GraphCache {
	cache := &workbook.GraphCache{
		Dependencies:      make(map[string][]string, len(g.Dependencies)),
		Dependents:        make(map[string][]string, len(g.Dependents)),
		ContentHashByCell: make(map[string]string, len(cells)),
	}
	for id, deps := range g.Dependencies {
		cache.Dependencies[id] = append([]string(nil), deps...)
	}
	for id, deps := range g.Dependents {
		cache.Dependents[id] = append([]string(nil), deps...)
	}
	for id, cell := range cells {
		cache.ContentHashByCell[id] = cellContentHash(cell)
	}
	return cache
}

func cellContentHash(cell workbook.Cell) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(cell.Type))
	if raw, err := json.Marshal(cell.Data); err == nil {
		_, _ = h.Write(raw)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
