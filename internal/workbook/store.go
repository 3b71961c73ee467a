package workbook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

// DependencyResolver resolves the in-sheet dependencies of a cell from
// its current contents. Implemented by the cell registry.
type DependencyResolver interface {
	// FindDependencies returns the ids of cells in cellsInSheet that
	// cell depends on. Ids outside cellsInSheet must not be returned.
	FindDependencies(cell Cell, cellsInSheet map[string]Cell) []string

	// RequiresParser reports whether cells of the given type need the
	// statement parser collaborator to run.
	RequiresParser(cellType string) bool
}

// Store is the lifecycle manager: it owns cell data, sheet membership,
// run statuses, and abort handles for in-flight runs. All methods are
// safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	cells          map[string]Cell
	sheets         map[string]*Sheet
	sheetOrder     []string
	openSheetIDs   []string
	currentSheetID string

	statuses map[string]CellStatus
	aborts   map[string]context.CancelFunc

	resolver        DependencyResolver
	parserAvailable bool
	logger          *slog.Logger
}

// New creates an empty store. If logger is nil, a discard logger is
// used.
func New(resolver DependencyResolver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		cells:    make(map[string]Cell),
		sheets:   make(map[string]*Sheet),
		statuses: make(map[string]CellStatus),
		aborts:   make(map[string]context.CancelFunc),
		resolver: resolver,
		logger:   logger,
	}
}

// SetParserAvailable records whether a statement parser collaborator is
// configured. Adding a cell whose type requires parsing fails while
// this is false.
func (s *Store) SetParserAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parserAvailable = available
}

// AddSheet registers a new sheet, appends it to the sheet order and
// open tabs, and makes it current if no sheet is current yet. An empty
// id is assigned; an empty type defaults to notebook.
func (s *Store) AddSheet(sheet *Sheet) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sheet.ID == "" {
		sheet.ID = NewSheetID()
	}
	if sheet.Type == "" {
		sheet.Type = SheetTypeNotebook
	}
	if _, exists := s.sheets[sheet.ID]; exists {
		return "", fmt.Errorf("sheet %q already exists", sheet.ID)
	}

	s.sheets[sheet.ID] = sheet.Clone()
	s.sheetOrder = append(s.sheetOrder, sheet.ID)
	s.openSheetIDs = append(s.openSheetIDs, sheet.ID)
	if s.currentSheetID == "" {
		s.currentSheetID = sheet.ID
	}

	s.logger.Debug("sheet added", "sheet", sheet.ID, "title", sheet.Title)
	return sheet.ID, nil
}

// RemoveSheet hard-deletes the sheet and every cell it owns: cell data,
// statuses, and any in-flight run are all removed. If the removed sheet
// was current, another sheet is promoted.
func (s *Store) RemoveSheet(sheetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, ok := s.sheets[sheetID]
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}

	for _, cellID := range sheet.CellIDs {
		s.deleteCellLocked(cellID)
	}

	delete(s.sheets, sheetID)
	s.sheetOrder = removeString(s.sheetOrder, sheetID)
	s.openSheetIDs = removeString(s.openSheetIDs, sheetID)

	if s.currentSheetID == sheetID {
		s.currentSheetID = ""
		if len(s.sheetOrder) > 0 {
			s.currentSheetID = s.sheetOrder[0]
		}
	}

	s.logger.Debug("sheet removed", "sheet", sheetID)
	return nil
}

// RenameSheet updates a sheet's title.
func (s *Store) RenameSheet(sheetID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, ok := s.sheets[sheetID]
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}
	sheet.Title = title
	return nil
}

// SetCurrentSheet switches the active sheet.
func (s *Store) SetCurrentSheet(sheetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sheets[sheetID]; !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}
	s.currentSheetID = sheetID
	return nil
}

// SetSheetOrder replaces the sheet ordering. The new order must contain
// exactly the existing sheet ids.
func (s *Store) SetSheetOrder(order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order) != len(s.sheets) {
		return fmt.Errorf("sheet order has %d entries, want %d", len(order), len(s.sheets))
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if _, ok := s.sheets[id]; !ok {
			return fmt.Errorf("sheet %q not found", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("sheet %q listed twice", id)
		}
		seen[id] = struct{}{}
	}

	s.sheetOrder = append([]string(nil), order...)
	return nil
}

// OpenSheet adds a sheet to the open-tabs list.
func (s *Store) OpenSheet(sheetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sheets[sheetID]; !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}
	for _, id := range s.openSheetIDs {
		if id == sheetID {
			return nil
		}
	}
	s.openSheetIDs = append(s.openSheetIDs, sheetID)
	return nil
}

// CloseSheet removes a sheet from the open-tabs list without deleting
// it.
func (s *Store) CloseSheet(sheetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openSheetIDs = removeString(s.openSheetIDs, sheetID)
}

// AddCell inserts a cell into a sheet at the given index (negative or
// out-of-range appends). If the cell id is currently owned by another
// sheet it is removed from that sheet first, so a cell id appears in at
// most one sheet's CellIDs at any time. Cell data is upserted and an
// idle status is created. Adding a cell whose type requires the
// statement parser fails when none is configured.
func (s *Store) AddCell(sheetID string, cell Cell, index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, ok := s.sheets[sheetID]
	if !ok {
		return "", fmt.Errorf("sheet %q not found", sheetID)
	}

	if s.resolver != nil && s.resolver.RequiresParser(cell.Type) && !s.parserAvailable {
		return "", fmt.Errorf("cannot add %s cell to sheet %q: %w", cell.Type, sheetID, sqlparse.ErrParserRequired)
	}

	if cell.ID == "" {
		cell.ID = NewCellID()
	}

	// Single-owner enforcement: evict the id from every other sheet.
	for id, other := range s.sheets {
		if id == sheetID {
			continue
		}
		if containsString(other.CellIDs, cell.ID) {
			other.CellIDs = removeString(other.CellIDs, cell.ID)
			other.Edges = removeEdgesTouching(other.Edges, cell.ID)
			other.GraphCache = nil
			s.refreshDependencyEdgesLocked(other)
		}
	}

	if !containsString(sheet.CellIDs, cell.ID) {
		if index < 0 || index >= len(sheet.CellIDs) {
			sheet.CellIDs = append(sheet.CellIDs, cell.ID)
		} else {
			sheet.CellIDs = append(sheet.CellIDs[:index], append([]string{cell.ID}, sheet.CellIDs[index:]...)...)
		}
	}

	s.cells[cell.ID] = cell
	s.statuses[cell.ID] = CellStatus{Type: cell.Type, Status: StatusIdle}
	sheet.GraphCache = nil
	s.refreshDependencyEdgesLocked(sheet)

	s.logger.Debug("cell added", "cell", cell.ID, "type", cell.Type, "sheet", sheetID)
	return cell.ID, nil
}

// RemoveCell deletes cell data and status and aborts any in-flight run.
// It does not edit sheet membership; use RemoveCellFromSheet for the
// composite operation.
func (s *Store) RemoveCell(cellID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCellLocked(cellID)
}

// RemoveCellFromSheet removes a cell from its sheet's membership and
// edges, then hard-deletes it.
func (s *Store) RemoveCellFromSheet(sheetID, cellID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sheet, ok := s.sheets[sheetID]
	if !ok {
		return fmt.Errorf("sheet %q not found", sheetID)
	}

	sheet.CellIDs = removeString(sheet.CellIDs, cellID)
	sheet.Edges = removeEdgesTouching(sheet.Edges, cellID)
	sheet.GraphCache = nil
	s.deleteCellLocked(cellID)
	s.refreshDependencyEdgesLocked(sheet)
	return nil
}

// UpdateCell applies a patch to a cell's data and refreshes the owning
// sheet's dependency edges. Callers re-run downstream cells themselves.
func (s *Store) UpdateCell(cellID string, patch func(*CellData)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[cellID]
	if !ok {
		return fmt.Errorf("cell %q not found", cellID)
	}

	patch(&cell.Data)
	s.cells[cellID] = cell

	if sheet := s.sheetOfLocked(cellID); sheet != nil {
		sheet.GraphCache = nil
		s.refreshDependencyEdgesLocked(sheet)
	}
	return nil
}

// Cell returns a cell by id.
func (s *Store) Cell(cellID string) (Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.cells[cellID]
	return cell, ok
}

// Sheet returns a copy of a sheet by id.
func (s *Store) Sheet(sheetID string) (*Sheet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sheet, ok := s.sheets[sheetID]
	if !ok {
		return nil, false
	}
	return sheet.Clone(), true
}

// SheetOf returns the id of the sheet owning the given cell.
func (s *Store) SheetOf(cellID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sheet := s.sheetOfLocked(cellID); sheet != nil {
		return sheet.ID, true
	}
	return "", false
}

// CellsInSheet returns the cell data for every cell the sheet owns.
// Ids present in CellIDs without data are skipped.
func (s *Store) CellsInSheet(sheetID string) map[string]Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cellsInSheetLocked(sheetID)
}

// ParameterCells returns the sheet's input cells in sheet order.
func (s *Store) ParameterCells(sheetID string) []Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, ok := s.sheets[sheetID]
	if !ok {
		return nil
	}
	var out []Cell
	for _, id := range sheet.CellIDs {
		cell, ok := s.cells[id]
		if ok && cell.Type == CellTypeInput && cell.Data.Input != nil {
			out = append(out, cell)
		}
	}
	return out
}

// SheetOrder returns the current sheet ordering.
func (s *Store) SheetOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sheetOrder...)
}

// OpenSheetIDs returns the open-tabs list.
func (s *Store) OpenSheetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.openSheetIDs...)
}

// CurrentSheetID returns the active sheet id, or empty.
func (s *Store) CurrentSheetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSheetID
}

// Status returns a cell's status.
func (s *Store) Status(cellID string) (CellStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[cellID]
	return st, ok
}

// UpdateStatus applies a mutation to a cell's status. It reports
// whether the cell has a status entry.
func (s *Store) UpdateStatus(cellID string, mutate func(*CellStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[cellID]
	if !ok {
		return false
	}
	mutate(&st)
	s.statuses[cellID] = st
	return true
}

// TrackRun registers the abort handle for an in-flight run. Any handle
// already registered for the cell is cancelled first.
func (s *Store) TrackRun(cellID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.aborts[cellID]; ok {
		prev()
	}
	s.aborts[cellID] = cancel
}

// ClearRun removes a cell's abort handle without cancelling it. Called
// in the run's cleanup regardless of outcome.
func (s *Store) ClearRun(cellID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.aborts, cellID)
}

// CancelCell triggers the abort handle of an in-flight run. It reports
// whether a run was in flight. The handle itself is removed by the
// run's own cleanup.
func (s *Store) CancelCell(cellID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.aborts[cellID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// SetGraphCache stores a complete derived graph snapshot for a sheet.
func (s *Store) SetGraphCache(sheetID string, cache *GraphCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sheet, ok := s.sheets[sheetID]; ok {
		sheet.GraphCache = cache
	}
}

// GraphCacheFor returns a sheet's graph snapshot, if present.
func (s *Store) GraphCacheFor(sheetID string) (*GraphCache, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sheet, ok := s.sheets[sheetID]
	if !ok || sheet.GraphCache == nil {
		return nil, false
	}
	return sheet.GraphCache, true
}

// Config returns a snapshot of the persisted configuration shape.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := Config{
		Data:           make(map[string]Cell, len(s.cells)),
		Sheets:         make(map[string]*Sheet, len(s.sheets)),
		SheetOrder:     append([]string(nil), s.sheetOrder...),
		OpenSheetIDs:   append([]string(nil), s.openSheetIDs...),
		CurrentSheetID: s.currentSheetID,
	}
	for id, cell := range s.cells {
		cfg.Data[id] = cell
	}
	for id, sheet := range s.sheets {
		cfg.Sheets[id] = sheet.Clone()
	}
	return cfg
}

// Load replaces the store contents with a persisted configuration.
// Every loaded cell gets an idle status; single ownership is enforced,
// with the first sheet in sheet order winning a contested cell id.
func (s *Store) Load(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range cfg.SheetOrder {
		if _, ok := cfg.Sheets[id]; !ok {
			return fmt.Errorf("sheet order references unknown sheet %q", id)
		}
	}

	s.cells = make(map[string]Cell, len(cfg.Data))
	s.sheets = make(map[string]*Sheet, len(cfg.Sheets))
	s.statuses = make(map[string]CellStatus, len(cfg.Data))

	for id, cell := range cfg.Data {
		if cell.ID == "" {
			cell.ID = id
		}
		s.cells[id] = cell
		s.statuses[id] = CellStatus{Type: cell.Type, Status: StatusIdle}
	}

	owned := make(map[string]struct{})
	order := cfg.SheetOrder
	if len(order) == 0 {
		for id := range cfg.Sheets {
			order = append(order, id)
		}
	}
	for _, sheetID := range order {
		src, ok := cfg.Sheets[sheetID]
		if !ok {
			continue
		}
		sheet := src.Clone()
		var kept []string
		for _, cellID := range sheet.CellIDs {
			if _, taken := owned[cellID]; taken {
				s.logger.Warn("cell owned by multiple sheets, keeping first", "cell", cellID, "sheet", sheetID)
				continue
			}
			owned[cellID] = struct{}{}
			kept = append(kept, cellID)
		}
		sheet.CellIDs = kept
		sheet.GraphCache = nil
		s.sheets[sheetID] = sheet
	}

	s.sheetOrder = append([]string(nil), order...)
	s.openSheetIDs = append([]string(nil), cfg.OpenSheetIDs...)
	if len(s.openSheetIDs) == 0 {
		s.openSheetIDs = append([]string(nil), s.sheetOrder...)
	}

	s.currentSheetID = cfg.CurrentSheetID
	if _, ok := s.sheets[s.currentSheetID]; !ok {
		s.currentSheetID = ""
		if len(s.sheetOrder) > 0 {
			s.currentSheetID = s.sheetOrder[0]
		}
	}

	for _, sheet := range s.sheets {
		s.refreshDependencyEdgesLocked(sheet)
	}
	return nil
}

// deleteCellLocked removes cell data, status, and any in-flight run.
func (s *Store) deleteCellLocked(cellID string) {
	if cancel, ok := s.aborts[cellID]; ok {
		cancel()
		delete(s.aborts, cellID)
	}
	delete(s.cells, cellID)
	delete(s.statuses, cellID)
}

func (s *Store) sheetOfLocked(cellID string) *Sheet {
	for _, id := range s.sheetOrder {
		sheet := s.sheets[id]
		if sheet != nil && containsString(sheet.CellIDs, cellID) {
			return sheet
		}
	}
	// Sheets not yet in sheetOrder are still searched.
	for _, sheet := range s.sheets {
		if containsString(sheet.CellIDs, cellID) {
			return sheet
		}
	}
	return nil
}

func (s *Store) cellsInSheetLocked(sheetID string) map[string]Cell {
	sheet, ok := s.sheets[sheetID]
	if !ok {
		return nil
	}
	out := make(map[string]Cell, len(sheet.CellIDs))
	for _, id := range sheet.CellIDs {
		if cell, ok := s.cells[id]; ok {
			out[id] = cell
		}
	}
	return out
}

// refreshDependencyEdgesLocked rebuilds a sheet's dependency edges from
// the resolver, preserving manual edges.
func (s *Store) refreshDependencyEdgesLocked(sheet *Sheet) {
	if s.resolver == nil {
		return
	}

	var edges []Edge
	for _, e := range sheet.Edges {
		if e.Kind == EdgeKindManual {
			edges = append(edges, e)
		}
	}

	cells := s.cellsInSheetLocked(sheet.ID)
	for _, cellID := range sheet.CellIDs {
		cell, ok := cells[cellID]
		if !ok {
			continue
		}
		for _, dep := range s.resolver.FindDependencies(cell, cells) {
			if _, inSheet := cells[dep]; !inSheet || dep == cellID {
				continue
			}
			edges = append(edges, Edge{
				ID:     "dep-" + dep + "-" + cellID,
				Source: dep,
				Target: cellID,
				Kind:   EdgeKindDependency,
			})
		}
	}
	sheet.Edges = edges
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func removeEdgesTouching(edges []Edge, cellID string) []Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.Source != cellID && e.Target != cellID {
			out = append(out, e)
		}
	}
	return out
}
