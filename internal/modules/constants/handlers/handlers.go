// Package handlers provides HTTP handlers for the system constants store.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/constants"
)

// Handler provides HTTP handlers for constants endpoints
type Handler struct {
	service *constants.Service
	log     zerolog.Logger
}

// NewHandler creates a new constants handler
func NewHandler(service *constants.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "constants").Logger(),
	}
}

// HandleGetAll handles GET /api/constants?category=
func (h *Handler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	var (
		list []*domain.SystemConstant
		err  error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		list, err = h.service.GetByCategory(category)
	} else {
		list, err = h.service.GetAll()
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list constants")
		http.Error(w, "Failed to list constants", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"constants": list,
		"total":     len(list),
	})
}

// HandleGet handles GET /api/constants/{key}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	constant, err := h.service.Get(key)
	if err != nil {
		h.respondError(w, err, "Failed to get constant")
		return
	}

	writeJSON(w, constant)
}

// UpdateRequest is the PUT /api/constants/{key} body.
type UpdateRequest struct {
	Value     float64 `json:"value"`
	UpdatedBy string  `json:"updated_by,omitempty"`
}

// HandleUpdate handles PUT /api/constants/{key}
// Bounds and editability are enforced by the service; every change lands
// in the audit trail.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "api"
	}

	updated, err := h.service.Set(key, req.Value, req.UpdatedBy)
	if err != nil {
		h.respondError(w, err, "Failed to update constant")
		return
	}

	writeJSON(w, updated)
}

// HandleAuditTrail handles GET /api/constants/{key}/audit?limit=
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit: "+raw, http.StatusBadRequest)
			return
		}
		limit = v
	}

	trail, err := h.service.AuditTrail(key, limit)
	if err != nil {
		h.respondError(w, err, "Failed to get audit trail")
		return
	}

	writeJSON(w, map[string]interface{}{
		"constant_key": key,
		"audit":        trail,
		"total":        len(trail),
	})
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

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
