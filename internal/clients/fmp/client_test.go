package fmp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", 5*time.Second, zerolog.Nop()).WithBaseURL(server.URL)
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/search-symbol", r.URL.Path)
		assert.Equal(t, "SHEL", r.URL.Query().Get("query"))
		assert.Equal(t, "LSE", r.URL.Query().Get("exchange"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`[
			{"symbol":"SHEL.L","name":"Shell plc","currency":"GBp","exchangeFullName":"London Stock Exchange","exchange":"LSE"},
			{"symbol":"SHEL","name":"Shell plc ADR","currency":"USD","exchangeFullName":"NYSE","exchange":"NYSE"}
		]`))
	})

	listing, err := client.Search(context.Background(), "SHEL", "LSE")
	require.NoError(t, err)

	assert.Equal(t, "SHEL", listing.Ticker.Symbol)
	assert.Equal(t, domain.CurrencyUSD, listing.Ticker.Currency)
	assert.Equal(t, domain.ProviderFMP, listing.Ticker.Provider)
	assert.Equal(t, "Shell plc ADR", listing.Asset.Name)
}

func TestSearchEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.Search(context.Background(), "NOPE", "")
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
}

func TestLatestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","name":"Apple Inc.","price":187.44,"exchange":"NASDAQ"}]`))
	})

	price, err := client.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("187.44").Equal(price))
}

func TestHistoricalRate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/historical-price-eod/light", r.URL.Path)
		assert.Equal(t, "USDEUR", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`[{"symbol":"USDEUR","date":"2024-03-01","price":0.9241,"volume":0}]`))
	})

	rate, err := client.HistoricalRate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.9241").Equal(rate))
}

func TestHistoricalRateIdentity(t *testing.T) {
	client := NewClient("", time.Second, zerolog.Nop())

	rate, err := client.HistoricalRate(context.Background(), domain.CurrencyEUR, domain.CurrencyEUR, time.Now())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestErrorMessagePayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message":"Invalid API KEY."}`))
	})

	_, err := client.LatestPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API KEY")
}

func TestStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.HistoricalRate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR, time.Now())
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient("", time.Second, zerolog.Nop())

	_, err := client.Search(context.Background(), "AAPL", "")
	assert.Error(t, err)
}
