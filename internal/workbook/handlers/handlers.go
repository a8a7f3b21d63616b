// Package handlers provides HTTP handlers for workbook ingest operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// Handler provides HTTP handlers for workbook endpoints
type Handler struct {
	service *workbook.Service
	log     zerolog.Logger
}

// NewHandler creates a new workbook handler
func NewHandler(service *workbook.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "workbook").Logger(),
	}
}

// HandleReload handles POST /api/workbook/reload
// Re-reads the workbook from disk and invalidates all derived caches.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Reload()
	if err != nil {
		h.log.Error().Err(err).Msg("Workbook reload failed")
		switch domain.KindOf(err) {
		case domain.KindInputFormat, domain.KindNotFound:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case domain.KindTimeout:
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
		default:
			http.Error(w, "Workbook reload failed", http.StatusInternalServerError)
		}
		return
	}

	response := map[string]interface{}{
		"status":        "reloaded",
		"signature":     stats.Signature,
		"sheets_loaded": stats.Sheets,
		"rows":          stats.Rows,
		"warnings":      stats.Warnings,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HandleStatus handles GET /api/workbook/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Repository().CurrentStatus()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
