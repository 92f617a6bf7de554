// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/ledger"
	"github.com/rs/zerolog"
)

// maxUploadSize bounds CSV uploads
const maxUploadSize = 32 << 20

// Importer imports a CSV ledger
type Importer interface {
	Import(ctx context.Context, r io.Reader, source string, provider domain.Provider) (*ledger.ImportSummary, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	transactions    *ledger.TransactionRepository
	runs            *ledger.ImportRunRepository
	importer        Importer
	defaultProvider domain.Provider
	log             zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	transactions *ledger.TransactionRepository,
	runs *ledger.ImportRunRepository,
	importer Importer,
	defaultProvider domain.Provider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		transactions:    transactions,
		runs:            runs,
		importer:        importer,
		defaultProvider: defaultProvider,
		log:             log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetTransactions handles GET /api/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	filter := ledger.TransactionFilter{
		Symbol: r.URL.Query().Get("symbol"),
		Broker: r.URL.Query().Get("broker"),
		Limit:  parseLimit(r, 100),
	}

	txs, err := h.transactions.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		http.Error(w, "Failed to query transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"transactions": txs,
			"count":        len(txs),
		},
		"metadata": metadata(),
	})
}

// HandleImport handles POST /api/transactions/import. The CSV is read from
// the "file" multipart field or, for any other content type, from the body.
// ?provider= overrides the default provider for symbol resolution.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	provider := h.defaultProvider
	if p := r.URL.Query().Get("provider"); p != "" {
		parsed, err := domain.ParseProvider(p)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		provider = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var (
		body   io.Reader = r.Body
		source           = "upload"
	)
	if err := r.ParseMultipartForm(maxUploadSize); err == nil {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
		source = header.Filename
	} else if !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}

	summary, err := h.importer.Import(r.Context(), body, source, provider)
	if err != nil {
		h.log.Warn().Err(err).Str("source", source).Msg("Import failed")
		h.writeJSON(w, importStatus(err), map[string]interface{}{
			"error":    err.Error(),
			"errors":   importErrors(err),
			"metadata": metadata(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"summary":     summary,
			"duration_ms": summary.Duration().Milliseconds(),
		},
		"metadata": metadata(),
	})
}

// HandleGetImportRuns handles GET /api/transactions/runs
func (h *Handler) HandleGetImportRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.List(r.Context(), parseLimit(r, 20))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query import runs")
		http.Error(w, "Failed to query import runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []ledger.ImportSummary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": metadata(),
	})
}

// importStatus maps an import failure onto an HTTP status
func importStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrAccounting):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLookupFailure), errors.Is(err, domain.ErrRateUnavailable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func importErrors(err error) []string {
	var importErr *domain.ImportError
	if !errors.As(err, &importErr) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(importErr.Errs))
	for _, e := range importErr.Errs {
		out = append(out, e.Error())
	}
	return out
}

func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}
