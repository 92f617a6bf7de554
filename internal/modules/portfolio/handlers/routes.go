package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all holdings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/holdings", func(r chi.Router) {
		r.Get("/", h.HandleGetHoldings)       // Holdings valued in the base currency
		r.Get("/summary", h.HandleGetSummary) // Totals and allocations
	})
}
