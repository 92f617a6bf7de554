package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Version is set at build time with -ldflags
var Version = "dev"

// handleHealth reports healthy only while the ledger database answers.
// The cache database is not checked; losing it only costs provider calls.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK

	if ledger := s.container.LedgerDB; ledger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ledger.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("Ledger database health check failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": Version,
		"service": "portfolio-tracker",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
