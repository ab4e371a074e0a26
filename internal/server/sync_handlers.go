package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avolkov/fxsync/internal/ratesync"
)

type syncStartRequest struct {
	Mode string `json:"mode"`
}

// handleSyncStart handles POST /api/sync/start
func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	var req syncStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var mode ratesync.BaselineMode
	switch req.Mode {
	case "full", string(ratesync.BaselineFirstTransaction):
		mode = ratesync.BaselineFirstTransaction
	case "incremental", string(ratesync.BaselineLastKnownRate):
		mode = ratesync.BaselineLastKnownRate
	default:
		s.writeError(w, http.StatusBadRequest, "mode must be one of: full, first-transaction, incremental, last-known-rate")
		return
	}

	handle, err := s.engine.Start(mode)
	if err != nil {
		if errors.Is(err, ratesync.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, handle)
}

// handleSyncCancel handles POST /api/sync/cancel
func (s *Server) handleSyncCancel(w http.ResponseWriter, r *http.Request) {
	s.engine.Cancel()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// handleSyncStatus handles GET /api/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}
