package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	report *prices.RefreshReport
	err    error
}

func (s stubRefresher) RefreshAll(context.Context) (*prices.RefreshReport, error) {
	return s.report, s.err
}

type refreshBody struct {
	Data struct {
		Updated []string `json:"updated"`
		Failed  []string `json:"failed"`
		Partial bool     `json:"partial"`
	} `json:"data"`
	Error string `json:"error"`
}

func doRefresh(t *testing.T, refresher Refresher) (*httptest.ResponseRecorder, refreshBody) {
	t.Helper()

	r := chi.NewRouter()
	NewHandler(refresher, zerolog.Nop()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prices/refresh", nil))

	var body refreshBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec, body
}

func TestHandleRefresh(t *testing.T) {
	rec, body := doRefresh(t, stubRefresher{report: &prices.RefreshReport{Updated: []string{"AAPL", "MSFT"}}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, body.Data.Updated)
	assert.Empty(t, body.Data.Failed)
	assert.False(t, body.Data.Partial)
}

func TestHandleRefresh_Partial(t *testing.T) {
	failures := []domain.SymbolError{{Symbol: "DELISTED", Err: domain.ErrLookupFailure}}
	report := &prices.RefreshReport{Updated: []string{"AAPL"}, Failed: failures}

	rec, body := doRefresh(t, stubRefresher{
		report: report,
		err:    &domain.PartialRefreshError{Failures: failures},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Data.Partial)
	assert.Equal(t, []string{"DELISTED"}, body.Data.Failed)
}

func TestHandleRefresh_Failure(t *testing.T) {
	rec, body := doRefresh(t, stubRefresher{err: errors.New("database is locked")})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body.Error, "locked")
}
