// Package handlers provides HTTP handlers for per-facility storage records.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// FacilitySource resolves facilities by code.
// Satisfied by facilities.Service.
type FacilitySource interface {
	GetByCode(code string) (*domain.StorageFacility, error)
}

// RecordSource computes storage records.
// Satisfied by storage.Calculator.
type RecordSource interface {
	GetStorageRecord(f *domain.StorageFacility, period domain.CalculationPeriod) (*domain.StorageRecord, error)
}

// Handler provides HTTP handlers for storage endpoints
type Handler struct {
	facilities FacilitySource
	records    RecordSource
	log        zerolog.Logger
}

// NewHandler creates a new storage handler
func NewHandler(facilities FacilitySource, records RecordSource, log zerolog.Logger) *Handler {
	return &Handler{
		facilities: facilities,
		records:    records,
		log:        log.With().Str("handler", "storage").Logger(),
	}
}

// HandleGetRecord handles GET /api/storage/{code}?year=&month=
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	yearRaw := r.URL.Query().Get("year")
	monthRaw := r.URL.Query().Get("month")
	if yearRaw == "" || monthRaw == "" {
		http.Error(w, "year and month query parameters are required", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		http.Error(w, "Invalid year: "+yearRaw, http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		http.Error(w, "Invalid month: "+monthRaw, http.StatusBadRequest)
		return
	}
	period, err := domain.NewPeriod(year, month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	facility, err := h.facilities.GetByCode(code)
	if err != nil {
		h.respondError(w, err, "Failed to get facility")
		return
	}

	record, err := h.records.GetStorageRecord(facility, period)
	if err != nil {
		h.respondError(w, err, "Failed to compute storage record")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func (h *Handler) respondError(w http.ResponseWriter, err error, logMsg string) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.KindInputFormat, domain.KindInvariantViolation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Msg(logMsg)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}
