// Package handlers provides HTTP handlers for resolved tickers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// TickerLister lists stored tickers, optionally with their asset rows
type TickerLister interface {
	List(ctx context.Context) ([]domain.Ticker, error)
	ListListings(ctx context.Context) ([]domain.Listing, error)
}

// ProviderLister reports the configured quote providers in fallback order
type ProviderLister interface {
	Providers() []domain.Provider
}

// Handler handles ticker HTTP requests
type Handler struct {
	tickers   TickerLister
	providers ProviderLister
	log       zerolog.Logger
}

// NewHandler creates a new ticker handler
func NewHandler(tickers TickerLister, providers ProviderLister, log zerolog.Logger) *Handler {
	return &Handler{
		tickers:   tickers,
		providers: providers,
		log:       log.With().Str("handler", "tickers").Logger(),
	}
}

// RegisterRoutes registers ticker routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickers", func(r chi.Router) {
		r.Get("/", h.HandleGetTickers)
		r.Get("/assets", h.HandleGetAssets)
		r.Get("/providers", h.HandleGetProviders)
	})
}

// HandleGetTickers handles GET /api/tickers. ?asset_type= and ?provider=
// narrow the list.
func (h *Handler) HandleGetTickers(w http.ResponseWriter, r *http.Request) {
	list, err := h.tickers.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tickers")
		http.Error(w, "Failed to list tickers", http.StatusInternalServerError)
		return
	}

	assetType := r.URL.Query().Get("asset_type")
	provider := domain.ProviderUnknown
	if p := r.URL.Query().Get("provider"); p != "" {
		parsed, err := domain.ParseProvider(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		provider = parsed
	}

	out := make([]domain.Ticker, 0, len(list))
	for _, t := range list {
		if assetType != "" && !strings.EqualFold(string(t.AssetType), assetType) {
			continue
		}
		if provider != domain.ProviderUnknown && t.Provider != provider {
			continue
		}
		out = append(out, t)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"tickers": out,
			"count":   len(out),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetAssets handles GET /api/tickers/assets
func (h *Handler) HandleGetAssets(w http.ResponseWriter, r *http.Request) {
	listings, err := h.tickers.ListListings(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assets")
		http.Error(w, "Failed to list assets", http.StatusInternalServerError)
		return
	}

	type assetResponse struct {
		domain.Asset
		Symbol   string          `json:"symbol"`
		Provider domain.Provider `json:"provider"`
	}
	out := make([]assetResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, assetResponse{Asset: l.Asset, Symbol: l.Ticker.Symbol, Provider: l.Ticker.Provider})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"assets": out,
			"count":  len(out),
		},
	})
}

// HandleGetProviders handles GET /api/tickers/providers
func (h *Handler) HandleGetProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.providers.Providers()
	if providers == nil {
		providers = []domain.Provider{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"providers": providers,
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
