package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the rate lookup and conversion endpoints under /currency
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/currency", func(r chi.Router) {
		r.Get("/rate/{from}/{to}", h.HandleGetRate)
		r.Post("/convert", h.HandleConvert)
		r.Get("/rates/sources", h.HandleGetRateSources)
	})
}
