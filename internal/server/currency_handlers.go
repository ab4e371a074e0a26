package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avolkov/fxsync/internal/domain"
)

// handleListCurrencies handles GET /api/currencies
func (s *Server) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := s.currencies.All()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list currencies")
		s.writeError(w, http.StatusInternalServerError, "failed to list currencies")
		return
	}
	if currencies == nil {
		currencies = []domain.Currency{}
	}

	s.writeJSON(w, http.StatusOK, currencies)
}

type currencyRequest struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// handleCreateCurrency handles POST /api/currencies
func (s *Server) handleCreateCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		s.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	id, err := s.currencies.Create(req.Code, req.Name, req.Symbol)
	if err != nil {
		s.log.Error().Err(err).Str("code", req.Code).Msg("Failed to create currency")
		s.writeError(w, http.StatusInternalServerError, "failed to create currency")
		return
	}

	created, err := s.currencies.GetByID(id)
	if err != nil || created == nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load created currency")
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

// handleGetCurrency handles GET /api/currencies/{id}
func (s *Server) handleGetCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currencyID(w, r)
	if !ok {
		return
	}

	cur, err := s.currencies.GetByID(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load currency")
		return
	}
	if cur == nil {
		s.writeError(w, http.StatusNotFound, "currency not found")
		return
	}

	s.writeJSON(w, http.StatusOK, cur)
}

// handleUpdateCurrency handles PUT /api/currencies/{id}
func (s *Server) handleUpdateCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currencyID(w, r)
	if !ok {
		return
	}

	var req currencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.currencies.Update(id, req.Name, req.Symbol); err != nil {
		s.log.Error().Err(err).Int64("id", id).Msg("Failed to update currency")
		s.writeError(w, http.StatusInternalServerError, "failed to update currency")
		return
	}

	updated, err := s.currencies.GetByID(id)
	if err != nil || updated == nil {
		s.writeError(w, http.StatusNotFound, "currency not found")
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

// handleGetRates handles GET /api/currencies/{id}/rates?from=...&to=...
func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currencyID(w, r)
	if !ok {
		return
	}

	from, err := domain.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := domain.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		s.writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	records, err := s.rates.GetRange(id, from, to)
	if err != nil {
		s.log.Error().Err(err).Int64("currency_id", id).Msg("Failed to load rates")
		s.writeError(w, http.StatusInternalServerError, "failed to load rates")
		return
	}

	type ratePoint struct {
		Date string  `json:"date"`
		Rate float64 `json:"rate"`
	}
	points := make([]ratePoint, 0, len(records))
	for _, rec := range records {
		points = append(points, ratePoint{Date: domain.FormatDay(rec.Date), Rate: rec.Rate})
	}

	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) currencyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid currency id")
		return 0, false
	}
	return id, true
}
