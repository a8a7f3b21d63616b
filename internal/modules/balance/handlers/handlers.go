// Package handlers provides HTTP handlers for balance computation and
// persisted results.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/balance"
)

// Computer runs a balance computation for one period.
// Satisfied by balance.Orchestrator.
type Computer interface {
	Compute(period domain.CalculationPeriod, mode domain.BalanceMode) (*domain.BalanceResult, error)
}

// ResultSource reads persisted balance results.
// Satisfied by balance.ResultRepository.
type ResultSource interface {
	GetByPeriod(period domain.CalculationPeriod, mode domain.BalanceMode) (*domain.BalanceResult, error)
	ListRecent(limit int) ([]*balance.Summary, error)
}

// ModeSource supplies the site default balance mode.
// Satisfied by settings.Service.
type ModeSource interface {
	DefaultBalanceMode() (domain.BalanceMode, error)
}

// Handler provides HTTP handlers for balance endpoints
type Handler struct {
	computer Computer
	results  ResultSource
	modes    ModeSource
	log      zerolog.Logger
}

// NewHandler creates a new balance handler
func NewHandler(computer Computer, results ResultSource, modes ModeSource, log zerolog.Logger) *Handler {
	return &Handler{
		computer: computer,
		results:  results,
		modes:    modes,
		log:      log.With().Str("handler", "balance").Logger(),
	}
}

// HandleGet handles GET /api/balance?year=&month=&mode=
// Returns the persisted result for the period when one exists, otherwise
// computes it on the spot.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	period, ok := h.periodFromQuery(w, r)
	if !ok {
		return
	}
	mode, ok := h.modeFromRequest(w, r.URL.Query().Get("mode"))
	if !ok {
		return
	}

	persisted, err := h.results.GetByPeriod(period, mode)
	if err != nil {
		h.log.Error().Err(err).Str("period", period.String()).Msg("Failed to read persisted balance")
		http.Error(w, "Failed to read persisted balance", http.StatusInternalServerError)
		return
	}
	if persisted != nil {
		writeJSON(w, http.StatusOK, persisted)
		return
	}

	result, err := h.computer.Compute(period, mode)
	if err != nil {
		h.respondComputeError(w, err, period)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ComputeRequest is the POST /api/balance/compute body.
type ComputeRequest struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Mode  string `json:"mode,omitempty"`
}

// HandleCompute handles POST /api/balance/compute
// Always recomputes, bypassing any persisted result for the period.
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	period, err := domain.NewPeriod(req.Year, req.Month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, ok := h.modeFromRequest(w, req.Mode)
	if !ok {
		return
	}

	result, err := h.computer.Compute(period, mode)
	if err != nil {
		h.respondComputeError(w, err, period)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleResults handles GET /api/balance/results?limit=
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit: "+raw, http.StatusBadRequest)
			return
		}
		limit = v
	}

	summaries, err := h.results.ListRecent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list balance results")
		http.Error(w, "Failed to list balance results", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": summaries,
		"total":   len(summaries),
	})
}

// periodFromQuery parses the required year and month query parameters.
func (h *Handler) periodFromQuery(w http.ResponseWriter, r *http.Request) (domain.CalculationPeriod, bool) {
	yearRaw := r.URL.Query().Get("year")
	monthRaw := r.URL.Query().Get("month")
	if yearRaw == "" || monthRaw == "" {
		http.Error(w, "year and month query parameters are required", http.StatusBadRequest)
		return domain.CalculationPeriod{}, false
	}

	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		http.Error(w, "Invalid year: "+yearRaw, http.StatusBadRequest)
		return domain.CalculationPeriod{}, false
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		http.Error(w, "Invalid month: "+monthRaw, http.StatusBadRequest)
		return domain.CalculationPeriod{}, false
	}

	period, err := domain.NewPeriod(year, month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return domain.CalculationPeriod{}, false
	}
	return period, true
}

// modeFromRequest resolves the balance mode from an optional request value,
// falling back to the configured site default.
func (h *Handler) modeFromRequest(w http.ResponseWriter, raw string) (domain.BalanceMode, bool) {
	if raw == "" {
		mode, err := h.modes.DefaultBalanceMode()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read default balance mode")
			http.Error(w, "Failed to read default balance mode", http.StatusInternalServerError)
			return "", false
		}
		return mode, true
	}

	mode := domain.BalanceMode(strings.ToUpper(strings.TrimSpace(raw)))
	if !domain.ValidBalanceMode(mode) {
		http.Error(w, "Unknown balance mode: "+raw, http.StatusBadRequest)
		return "", false
	}
	return mode, true
}

// respondComputeError maps computation failures to HTTP status codes.
func (h *Handler) respondComputeError(w http.ResponseWriter, err error, period domain.CalculationPeriod) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.KindInputFormat, domain.KindInvariantViolation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Str("period", period.String()).Msg("Balance computation failed")
		http.Error(w, "Balance computation failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
