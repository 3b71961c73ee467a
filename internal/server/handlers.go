package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/cellflow/internal/cellreg"
	"github.com/leapstack-labs/cellflow/internal/results"
	"github.com/leapstack-labs/cellflow/internal/workbook"
	"github.com/leapstack-labs/cellflow/pkg/sqlparse"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleGetWorkbook(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Store().Config())
}

type sheetSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	SchemaName string `json:"schemaName,omitempty"`
	CellCount  int    `json:"cellCount"`
	Current    bool   `json:"current"`
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	current := store.CurrentSheetID()

	var out []sheetSummary
	for _, id := range store.SheetOrder() {
		sheet, ok := store.Sheet(id)
		if !ok {
			continue
		}
		out = append(out, sheetSummary{
			ID:         sheet.ID,
			Title:      sheet.Title,
			Type:       sheet.Type,
			SchemaName: sheet.SchemaName,
			CellCount:  len(sheet.CellIDs),
			Current:    sheet.ID == current,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

type addSheetRequest struct {
	Title      string `json:"title"`
	Type       string `json:"type"`
	SchemaName string `json:"schemaName"`
}

func (s *Server) handleAddSheet(w http.ResponseWriter, r *http.Request) {
	var req addSheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.engine.Store().AddSheet(&workbook.Sheet{
		Title:      req.Title,
		Type:       req.Type,
		SchemaName: req.SchemaName,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveSheet(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().RemoveSheet(chi.URLParam(r, "sheetID")); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCellRequest struct {
	Cell  workbook.Cell `json:"cell"`
	Index *int          `json:"index"`
}

func (s *Server) handleAddCell(w http.ResponseWriter, r *http.Request) {
	var req addCellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	id, err := s.engine.Store().AddCell(chi.URLParam(r, "sheetID"), req.Cell, index)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, sqlparse.ErrParserRequired) {
			status = http.StatusConflict
		}
		respondError(w, status, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveCell(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Store().RemoveCellFromSheet(chi.URLParam(r, "sheetID"), chi.URLParam(r, "cellID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	var patch workbook.CellData
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	err := s.engine.Store().UpdateCell(chi.URLParam(r, "cellID"), func(d *workbook.CellData) {
		*d = patch
	})
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.engine.Store().Status(chi.URLParam(r, "cellID"))
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("cell not found"))
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type runRequest struct {
	Cascade    bool   `json:"cascade"`
	SchemaName string `json:"schemaName"`
}

func (s *Server) handleRunCell(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
	}

	cellID := chi.URLParam(r, "cellID")
	err := s.engine.RunCell(r.Context(), cellID, cellreg.RunOptions{
		Cascade:      req.Cascade,
		SchemaName:   req.SchemaName,
		CacheResults: s.cacheResults,
	})
	if err != nil {
		if errors.Is(err, sqlparse.ErrParserRequired) {
			respondError(w, http.StatusConflict, err)
			return
		}
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}

	status, _ := s.engine.Store().Status(cellID)
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleRunSheet(w http.ResponseWriter, r *http.Request) {
	sheetID := chi.URLParam(r, "sheetID")
	err := s.engine.RunAllCells(r.Context(), sheetID, cellreg.RunOptions{
		CacheResults: s.cacheResults,
	})
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelCell(w http.ResponseWriter, r *http.Request) {
	cancelled := s.engine.CancelCell(chi.URLParam(r, "cellID"))
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameResult(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	if err := s.engine.RenameResult(r.Context(), chi.URLParam(r, "cellID"), req.Name); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDownstream(w http.ResponseWriter, r *http.Request) {
	downstream := s.engine.GetDownstream(chi.URLParam(r, "sheetID"), chi.URLParam(r, "cellID"))
	if downstream == nil {
		downstream = []string{}
	}
	respondJSON(w, http.StatusOK, downstream)
}

func (s *Server) handleGetResultPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := results.Pagination{
		PageIndex: queryInt(q.Get("pageIndex"), 0),
		PageSize:  queryInt(q.Get("pageSize"), results.DefaultPageSize),
	}
	sort := results.Sorting{
		Column: q.Get("sort"),
		Desc:   q.Get("desc") == "true",
	}

	result, err := s.engine.FetchResultPage(r.Context(), chi.URLParam(r, "cellID"), page, sort)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
