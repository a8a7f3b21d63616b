package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all facility routes.
// The static /transfers routes are declared before the {code} wildcards so
// chi resolves them first.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/facilities", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Get("/transfers", h.HandleTransfersForPeriod)
		r.Post("/transfers", h.HandleCreateTransfer)

		r.Get("/{code}", h.HandleGet)
		r.Put("/{code}", h.HandleUpdate)
		r.Delete("/{code}", h.HandleDelete)
		r.Get("/{code}/history", h.HandleHistory)
		r.Get("/{code}/transfers", h.HandleTransfersForFacility)
	})
}
