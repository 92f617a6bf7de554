// Package handlers exposes on-demand price refreshes over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Refresher runs one refresh cycle
type Refresher interface {
	RefreshAll(ctx context.Context) (*prices.RefreshReport, error)
}

// Handler handles price HTTP requests
type Handler struct {
	refresher Refresher
	log       zerolog.Logger
}

// NewHandler creates a new price handler
func NewHandler(refresher Refresher, log zerolog.Logger) *Handler {
	return &Handler{
		refresher: refresher,
		log:       log.With().Str("handler", "prices").Logger(),
	}
}

// RegisterRoutes registers price routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Post("/refresh", h.HandleRefresh)
	})
}

// HandleRefresh handles POST /api/prices/refresh. A partial refresh still
// answers 200 and lists the failing symbols.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.refresher.RefreshAll(r.Context())
	if err != nil && !errors.Is(err, domain.ErrPartialRefresh) {
		h.log.Error().Err(err).Msg("Price refresh failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	failed := report.FailedSymbols()
	updated := report.Updated
	if updated == nil {
		updated = []string{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"updated":     updated,
			"failed":      failed,
			"rates":       report.Rates,
			"partial":     len(failed) > 0,
			"duration_ms": report.Duration.Milliseconds(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
