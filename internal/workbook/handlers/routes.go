package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all workbook routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workbook", func(r chi.Router) {
		r.Post("/reload", h.HandleReload)
		r.Get("/status", h.HandleStatus)
	})
}
