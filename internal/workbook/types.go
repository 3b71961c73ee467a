// Package workbook holds the workspace data model and its lifecycle
// rules: typed cells grouped into sheets, single-owner cell membership,
// per-cell run status, and abort-handle bookkeeping for in-flight runs.
package workbook

import (
	"time"

	"github.com/google/uuid"
)

// Cell types understood by the built-in registry.
const (
	CellTypeSQL   = "sql"
	CellTypeText  = "text"
	CellTypeChart = "chart"
	CellTypeInput = "input"
)

// Sheet types.
const (
	SheetTypeNotebook = "notebook"
	SheetTypeCanvas   = "canvas"
)

// Edge kinds. Dependency edges are derived from cell contents and
// rebuilt on every cell mutation; manual edges are user-drawn and
// preserved across rebuilds.
const (
	EdgeKindDependency = "dependency"
	EdgeKindManual     = "manual"
)

// Run states for a cell status.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusCancel  = "cancel"
	StatusError   = "error"
)

// Input kinds for parameter cells.
const (
	InputKindText     = "text"
	InputKindNumber   = "number"
	InputKindSlider   = "slider"
	InputKindDropdown = "dropdown"
)

// Cell is a single unit of computation or content with a stable id.
// A cell is owned by exactly one sheet at a time.
type Cell struct {
	ID   string   `json:"id" yaml:"id"`
	Type string   `json:"type" yaml:"type"`
	Data CellData `json:"data" yaml:"data"`
}

// CellData is the type-specific payload of a cell. Fields not relevant
// to the cell's type are left zero.
type CellData struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// SQL cells.
	SQL        string `json:"sql,omitempty" yaml:"sql,omitempty"`
	ResultName string `json:"resultName,omitempty" yaml:"resultName,omitempty"`

	// Text cells.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Chart cells.
	SourceCellID string `json:"sourceCellId,omitempty" yaml:"sourceCellId,omitempty"`
	ChartSpec    string `json:"chartSpec,omitempty" yaml:"chartSpec,omitempty"`

	// Parameter cells.
	Input *InputData `json:"input,omitempty" yaml:"input,omitempty"`
}

// InputData describes a parameter cell: a named variable whose current
// value is substituted into downstream SQL.
type InputData struct {
	Kind    string   `json:"kind" yaml:"kind"`
	VarName string   `json:"varName" yaml:"varName"`
	Value   any      `json:"value" yaml:"value"`
	Min     float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max     float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Step    float64  `json:"step,omitempty" yaml:"step,omitempty"`
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Edge connects two cells within one sheet.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind" yaml:"kind"`
}

// GraphCache is a derived snapshot of a sheet's dependency graph used
// by read paths to avoid recomputing edges. It is either fully present
// or absent, never partially stale: ContentHashByCell records the cell
// contents the snapshot was built from.
type GraphCache struct {
	Dependencies      map[string][]string `json:"dependencies" yaml:"dependencies"`
	Dependents        map[string][]string `json:"dependents" yaml:"dependents"`
	ContentHashByCell map[string]string   `json:"contentHashByCell" yaml:"contentHashByCell"`
}

// Sheet is an ownership and dependency scope: an ordered set of cells
// plus their edges. CellIDs defines ownership, not just membership.
type Sheet struct {
	ID         string      `json:"id" yaml:"id"`
	Type       string      `json:"type" yaml:"type"`
	Title      string      `json:"title" yaml:"title"`
	SchemaName string      `json:"schemaName,omitempty" yaml:"schemaName,omitempty"`
	CellIDs    []string    `json:"cellIds" yaml:"cellIds"`
	Edges      []Edge      `json:"edges,omitempty" yaml:"edges,omitempty"`
	GraphCache *GraphCache `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the sheet. The graph cache is shared,
// not copied; it is replaced wholesale, never mutated in place.
func (s *Sheet) Clone() *Sheet {
	if s == nil {
		return nil
	}
	out := *s
	out.CellIDs = append([]string(nil), s.CellIDs...)
	out.Edges = append([]Edge(nil), s.Edges...)
	return &out
}

// CellStatus tracks the run state of one cell. Only the execution
// orchestrator mutates SQL cell statuses past idle.
type CellStatus struct {
	Type             string    `json:"type" yaml:"type"`
	Status           string    `json:"status" yaml:"status"`
	ResultName       string    `json:"resultName,omitempty" yaml:"resultName,omitempty"`
	ResultView       string    `json:"resultView,omitempty" yaml:"resultView,omitempty"`
	ReferencedTables []string  `json:"referencedTables,omitempty" yaml:"referencedTables,omitempty"`
	LastError        string    `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	LastRunTime      time.Time `json:"lastRunTime,omitempty" yaml:"lastRunTime,omitempty"`
}

// Config is the persisted workspace shape.
type Config struct {
	Data           map[string]Cell   `json:"data" yaml:"data"`
	Sheets         map[string]*Sheet `json:"sheets" yaml:"sheets"`
	SheetOrder     []string          `json:"sheetOrder" yaml:"sheetOrder"`
	OpenSheetIDs   []string          `json:"openSheetIds,omitempty" yaml:"openSheetIds,omitempty"`
	CurrentSheetID string            `json:"currentSheetId,omitempty" yaml:"currentSheetId,omitempty"`
}

// NewCellID returns a fresh cell id.
func NewCellID() string {
	return "cell-" + uuid.NewString()
}

// NewSheetID returns a fresh sheet id.
func NewSheetID() string {
	return "sheet-" + uuid.NewString()
}
