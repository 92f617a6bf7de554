// Package handlers provides HTTP handlers for holdings.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/portfolio-tracker/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// Handler handles holdings HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new holdings handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetHoldings returns every open holding valued in the base currency.
// ?broker= narrows to one broker, ?closed=true includes fully sold positions.
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	holdings, err := h.service.Holdings(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to project holdings")
		h.writeError(w, http.StatusInternalServerError, "Failed to project holdings")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"holdings":      holdings,
			"count":         len(holdings),
			"base_currency": h.service.BaseCurrency(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSummary returns totals and allocations across holdings
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), parseFilter(r))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to summarize holdings")
		h.writeError(w, http.StatusInternalServerError, "Failed to summarize holdings")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func parseFilter(r *http.Request) portfolio.HoldingFilter {
	filter := portfolio.HoldingFilter{Broker: r.URL.Query().Get("broker")}
	if closed, err := strconv.ParseBool(r.URL.Query().Get("closed")); err == nil {
		filter.IncludeClosed = closed
	}
	return filter
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
