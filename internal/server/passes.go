package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ir"
)

type passResponse struct {
	Report *engine.PassReport `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
	Code   string             `json:"code,omitempty"`
}

// handleCreatePass runs one pass for the posted record and waits for it.
func (s *Server) handleCreatePass(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "engine_disabled", "passes are not accepted by this server")
		return
	}

	var rec ir.Record
	if err := decodeJSON(r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	for _, sig := range rec.Signals {
		if !sig.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown signal "+string(sig))
			return
		}
	}

	report, err := s.engine.Submit(r.Context(), rec)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, passResponse{Report: report})
	case engine.IsLockContention(err):
		respondJSON(w, http.StatusConflict, passResponse{Error: err.Error(), Code: "lock_contention"})
	case engine.IsPlannerUnavailable(err):
		respondJSON(w, http.StatusBadGateway, passResponse{Error: err.Error(), Code: "planner_unavailable"})
	case errors.Is(err, engine.ErrStopped):
		respondJSON(w, http.StatusServiceUnavailable, passResponse{Error: err.Error(), Code: "engine_stopped"})
	case engine.IsHistoryError(err):
		s.log.Error("pass failed", "record", rec.ID, "error", err)
		respondJSON(w, http.StatusInternalServerError, passResponse{Report: report, Error: err.Error(), Code: "history_error"})
	default:
		s.log.Error("pass failed", "record", rec.ID, "error", err)
		respondJSON(w, http.StatusInternalServerError, passResponse{Report: report, Error: err.Error(), Code: "pass_failed"})
	}
}
