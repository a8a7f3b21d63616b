// Package handlers provides HTTP handlers for the alerting surface.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
)

// AlertSource reads persisted alerts.
// Satisfied by alerts.AlertRepository.
type AlertSource interface {
	ListActive() ([]*alerts.Alert, error)
	ListRecent(limit int) ([]*alerts.Alert, error)
	CountActive() (int, error)
}

// Resolver resolves alerts on behalf of an operator.
// Satisfied by alerts.Evaluator.
type Resolver interface {
	ResolveByUser(id int64) error
}

// Handler provides HTTP handlers for alert endpoints
type Handler struct {
	source   AlertSource
	resolver Resolver
	log      zerolog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(source AlertSource, resolver Resolver, log zerolog.Logger) *Handler {
	return &Handler{
		source:   source,
		resolver: resolver,
		log:      log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleList handles GET /api/alerts?active=&limit=
// active=true narrows to unresolved alerts; otherwise the most recent
// alerts of any status are returned.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "Invalid active flag: "+raw, http.StatusBadRequest)
			return
		}
		activeOnly = v
	}

	var (
		list []*alerts.Alert
		err  error
	)
	if activeOnly {
		list, err = h.source.ListActive()
	} else {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid limit: "+raw, http.StatusBadRequest)
				return
			}
		}
		list, err = h.source.ListRecent(limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"alerts": list,
		"total":  len(list),
	})
}

// HandleCount handles GET /api/alerts/count
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.source.CountActive()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count active alerts")
		http.Error(w, "Failed to count active alerts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"active": count})
}

// HandleResolve handles POST /api/alerts/{id}/resolve
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "Invalid alert id: "+raw, http.StatusBadRequest)
		return
	}

	if err := h.resolver.ResolveByUser(id); err != nil {
		if domain.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("alert_id", id).Msg("Failed to resolve alert")
		http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "resolved",
		"alert_id": id,
	})
}
