package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all constants routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/constants", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Get("/{key}", h.HandleGet)
		r.Put("/{key}", h.HandleUpdate)
		r.Get("/{key}/audit", h.HandleAuditTrail)
	})
}
