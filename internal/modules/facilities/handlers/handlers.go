// Package handlers provides HTTP handlers for the facility registry.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/facilities"
)

// Handler provides HTTP handlers for facility endpoints
type Handler struct {
	service *facilities.Service
	log     zerolog.Logger
}

// NewHandler creates a new facilities handler
func NewHandler(service *facilities.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "facilities").Logger(),
	}
}

// HandleList handles GET /api/facilities
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		list []*domain.StorageFacility
		err  error
	)

	if status := r.URL.Query().Get("status"); status != "" {
		fs := domain.FacilityStatus(status)
		if !domain.ValidFacilityStatus(fs) {
			http.Error(w, "Unknown facility status: "+status, http.StatusBadRequest)
			return
		}
		list, err = h.service.ListByStatus(fs)
	} else {
		list, err = h.service.GetAll()
	}

	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list facilities")
		http.Error(w, "Failed to list facilities", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"facilities": list,
		"total":      len(list),
	})
}

// HandleGet handles GET /api/facilities/{code}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	facility, err := h.service.GetByCode(code)
	if err != nil {
		h.respondError(w, err, "Failed to get facility")
		return
	}

	writeJSON(w, http.StatusOK, facility)
}

// HandleCreate handles POST /api/facilities
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var facility domain.StorageFacility
	if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(&facility)
	if err != nil {
		h.respondError(w, err, "Failed to create facility")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /api/facilities/{code}
// The code in the URL is authoritative; a body attempting to rename the
// facility is rejected by the service.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	existing, err := h.service.GetByCode(code)
	if err != nil {
		h.respondError(w, err, "Failed to get facility")
		return
	}

	var facility domain.StorageFacility
	if err := json.NewDecoder(r.Body).Decode(&facility); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	facility.ID = existing.ID

	updated, err := h.service.Update(&facility)
	if err != nil {
		h.respondError(w, err, "Failed to update facility")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/facilities/{code}
// Active facilities are protected and return 400.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	existing, err := h.service.GetByCode(code)
	if err != nil {
		h.respondError(w, err, "Failed to get facility")
		return
	}

	if err := h.service.Delete(existing.ID); err != nil {
		h.respondError(w, err, "Failed to delete facility")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "deleted",
		"code":   existing.Code,
	})
}

// HandleHistory handles GET /api/facilities/{code}/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	limit := queryInt(r, "limit", 0)

	history, err := h.service.History(code, limit)
	if err != nil {
		h.respondError(w, err, "Failed to get facility history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"facility_code": domain.NormalizeCode(code),
		"history":       history,
		"total":         len(history),
	})
}

// HandleCreateTransfer handles POST /api/facilities/transfers
func (h *Handler) HandleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var transfer domain.FacilityTransfer
	if err := json.NewDecoder(r.Body).Decode(&transfer); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateTransfer(&transfer)
	if err != nil {
		h.respondError(w, err, "Failed to create transfer")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleTransfersForPeriod handles GET /api/facilities/transfers?year=&month=
func (h *Handler) HandleTransfersForPeriod(w http.ResponseWriter, r *http.Request) {
	year, month, ok := periodParams(w, r)
	if !ok {
		return
	}

	period, err := domain.NewPeriod(year, month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	transfers, err := h.service.TransfersForPeriod(period)
	if err != nil {
		h.respondError(w, err, "Failed to list transfers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":    period.String(),
		"transfers": transfers,
		"total":     len(transfers),
	})
}

// HandleTransfersForFacility handles GET /api/facilities/{code}/transfers
func (h *Handler) HandleTransfersForFacility(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	limit := queryInt(r, "limit", 0)

	transfers, err := h.service.TransfersForFacility(code, limit)
	if err != nil {
		h.respondError(w, err, "Failed to list transfers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"facility_code": domain.NormalizeCode(code),
		"transfers":     transfers,
		"total":         len(transfers),
	})
}

// respondError maps domain error kinds to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, err error, logMsg string) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.KindDuplicateCode:
		http.Error(w, err.Error(), http.StatusConflict)
	case domain.KindInputFormat, domain.KindInvariantViolation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error().Err(err).Msg(logMsg)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// periodParams extracts the required year and month query parameters.
func periodParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	yearRaw := r.URL.Query().Get("year")
	monthRaw := r.URL.Query().Get("month")
	if yearRaw == "" || monthRaw == "" {
		http.Error(w, "year and month query parameters are required", http.StatusBadRequest)
		return 0, 0, false
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		http.Error(w, "Invalid year: "+yearRaw, http.StatusBadRequest)
		return 0, 0, false
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		http.Error(w, "Invalid month: "+monthRaw, http.StatusBadRequest)
		return 0, 0, false
	}
	return year, month, true
}
