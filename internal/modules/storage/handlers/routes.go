package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all storage routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/storage", func(r chi.Router) {
		r.Get("/{code}", h.HandleGetRecord)
	})
}
