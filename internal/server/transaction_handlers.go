package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avolkov/fxsync/internal/domain"
)

const defaultTransactionLimit = 100

type transactionRequest struct {
	CurrencyID  int64   `json:"currency_id"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// handleCreateTransaction handles POST /api/transactions
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := domain.ParseDay(req.Date)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	cur, err := s.currencies.GetByID(req.CurrencyID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to check currency")
		return
	}
	if cur == nil {
		s.writeError(w, http.StatusBadRequest, "unknown currency_id")
		return
	}

	txn := domain.Transaction{
		CurrencyID:  req.CurrencyID,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
	}

	id, err := s.ledger.Add(txn)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create transaction")
		s.writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	txn.ID = id
	s.writeJSON(w, http.StatusCreated, txn)
}

// handleListTransactions handles GET /api/transactions?limit=...
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	txns, err := s.ledger.List(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list transactions")
		s.writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}

	s.writeJSON(w, http.StatusOK, txns)
}
