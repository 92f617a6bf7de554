// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateService resolves exchange rates through the configured fallback chains
type RateService interface {
	domain.HistoricalRateProvider
	domain.CurrentRateProvider
	HistoricalSources() []string
	CurrentSources() []string
}

// Handler handles currency HTTP requests
type Handler struct {
	service RateService
	log     zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(service RateService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "currency").Logger(),
	}
}

// ConvertRequest represents a request to convert currency. Date is optional;
// when set the historical rate for that day is used.
type ConvertRequest struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
	Date         string          `json:"date,omitempty"`
}

// HandleGetRate handles GET /api/currency/rate/{from}/{to}?date=YYYY-MM-DD
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePair(chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rate, date, err := h.rate(r.Context(), from, to, r.URL.Query().Get("date"))
	if err != nil {
		h.writeRateError(w, err, from, to)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"from_currency": from,
			"to_currency":   to,
			"rate":          rate,
			"date":          date,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleConvert handles POST /api/currency/convert
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	from, to, err := parsePair(req.FromCurrency, req.ToCurrency)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be greater than 0", http.StatusBadRequest)
		return
	}

	rate, date, err := h.rate(r.Context(), from, to, req.Date)
	if err != nil {
		h.writeRateError(w, err, from, to)
		return
	}

	converted := req.Amount.Mul(rate)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"from_currency": from,
			"to_currency":   to,
			"from_amount":   req.Amount,
			"to_amount":     converted.Round(2),
			"formatted":     to.FormatAmount(converted),
			"rate":          rate,
			"date":          date,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRateSources handles GET /api/currency/rates/sources
func (h *Handler) HandleGetRateSources(w http.ResponseWriter, r *http.Request) {
	historical := h.service.HistoricalSources()
	current := h.service.CurrentSources()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"historical": sourceList(historical),
			"current":    sourceList(current),
			"count":      len(historical) + len(current),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// rate picks the historical chain when a date is given and the current one
// otherwise. The returned date is empty for current rates.
func (h *Handler) rate(ctx context.Context, from, to domain.Currency, dateStr string) (decimal.Decimal, string, error) {
	if dateStr == "" {
		rate, err := h.service.CurrentRate(ctx, from, to)
		return rate, "", err
	}

	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return decimal.Zero, "", errInvalidDate
	}
	rate, err := h.service.HistoricalRate(ctx, from, to, date)
	return rate, dateStr, err
}

var errInvalidDate = errors.New("date must be YYYY-MM-DD")

func (h *Handler) writeRateError(w http.ResponseWriter, err error, from, to domain.Currency) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errInvalidDate):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRateUnavailable):
		status = http.StatusBadGateway
	}

	h.log.Warn().Err(err).Str("from", string(from)).Str("to", string(to)).Msg("Failed to get exchange rate")
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func parsePair(fromStr, toStr string) (domain.Currency, domain.Currency, error) {
	if fromStr == "" || toStr == "" {
		return "", "", errors.New("from and to currencies are required")
	}
	from, err := domain.NormalizeCurrency(fromStr)
	if err != nil {
		return "", "", err
	}
	to, err := domain.NormalizeCurrency(toStr)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func sourceList(names []string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(names))
	for i, name := range names {
		out = append(out, map[string]interface{}{
			"name":     name,
			"priority": i + 1,
		})
	}
	return out
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
