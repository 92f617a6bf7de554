package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/aristath/portfolio-tracker/internal/di"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:              t.TempDir(),
		BaseCurrency:         domain.CurrencyEUR,
		DefaultProvider:      domain.ProviderFMP,
		FMPAPIKey:            "test-key",
		YahooEnabled:         true,
		MaxConcurrency:       2,
		HTTPTimeout:          time.Second,
		PriceRefreshSchedule: "0 0 */1 * * *",
		Backup:               &config.BackupConfig{Prefix: "portfolio"},
	}

	container, jobs, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	return New(Config{
		Log:             zerolog.Nop(),
		Port:            0,
		DevMode:         true,
		DataDir:         cfg.DataDir,
		DefaultProvider: cfg.DefaultProvider,
		Container:       container,
		Jobs:            jobs,
	})
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "portfolio-tracker", body["service"])
}

func TestSystemStatus(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["transaction_count"])
	assert.EqualValues(t, 0, body["ticker_count"])

	databases, ok := body["databases"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, databases, "ledger")
	assert.Contains(t, databases, "client_data")
	assert.Contains(t, body["jobs"], "price_refresh")
}

func TestTriggerJob(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodPost, "/api/system/jobs/check_databases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	rec, _ = do(t, s, http.MethodPost, "/api/system/jobs/does_not_exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportRejectsMalformedCSV(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodPost, "/api/transactions/import", "1,not-a-date,Buy,AAPL,1,100,0,Degiro\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["errors"])

	// Nothing was written
	rec, body = do(t, s, http.MethodGet, "/api/transactions/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["count"])
}

func TestEmptyPortfolio(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/holdings/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 0, data["count"])
	assert.Equal(t, "EUR", data["base_currency"])

	rec, _ = do(t, s, http.MethodGet, "/api/holdings/summary", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTickerProviders(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/tickers/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{"fmp", "yahoo"}, data["providers"])
}

func TestBackupRoundTrip(t *testing.T) {
	s := setupServer(t)

	rec, body := do(t, s, http.MethodPost, "/api/backup/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	filename, _ := body["filename"].(string)
	assert.True(t, strings.HasPrefix(filename, "portfolio-backup-"))

	rec, body = do(t, s, http.MethodGet, "/api/backup/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}
