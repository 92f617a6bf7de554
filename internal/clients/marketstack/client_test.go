package marketstack

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

func TestCurrencyForCountry(t *testing.T) {
	tests := []struct {
		country  string
		expected domain.Currency
		ok       bool
	}{
		{"US", "USD", true},
		{"gb", "GBP", true},
		{"DE", "EUR", true},
		{" NL ", "EUR", true},
		{"CH", "CHF", true},
		{"JP", "JPY", true},
		{"XX", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			c, ok := CurrencyForCountry(tt.country)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, c)
		})
	}
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickers/VWCE.XETRA", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("access_key"))
		_, _ = w.Write([]byte(`{
			"name": "Vanguard FTSE All-World UCITS ETF",
			"symbol": "VWCE.XETRA",
			"isin": "IE00BK5BQT80",
			"sector": "Financial",
			"industry": "Asset Management",
			"stock_exchange": {"acronym": "XETRA", "mic": "XETR", "country_code": "DE"}
		}`))
	})

	listing, err := client.Search(context.Background(), "VWCE", "XETRA")
	require.NoError(t, err)

	assert.Equal(t, "VWCE.XETRA", listing.Ticker.Symbol)
	assert.Equal(t, domain.CurrencyEUR, listing.Ticker.Currency)
	assert.Equal(t, "XETRA", listing.Ticker.Exchange)
	assert.Equal(t, domain.ProviderMarketstack, listing.Ticker.Provider)
	assert.Equal(t, "IE00BK5BQT80", listing.Asset.ISIN)
	assert.Equal(t, "Financial", listing.Asset.Sector)
	assert.Equal(t, "Asset Management", listing.Asset.Industry)
}

func TestSearchUnknownCountry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"X","symbol":"X","stock_exchange":{"acronym":"XX","country_code":"ZZ"}}`))
	})

	_, err := client.Search(context.Background(), "X", "")
	assert.ErrorIs(t, err, domain.ErrLookupFailure)
}

func TestSearchNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"not_found_error","message":"Ticker not found"}}`))
	})

	_, err := client.Search(context.Background(), "NOPE", "")
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
}

func TestLatestPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/latest", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		_, _ = w.Write([]byte(`{"data":[{"symbol":"AAPL","close":189.25,"price_currency":"usd","date":"2024-03-01T00:00:00+0000"}]}`))
	})

	price, err := client.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("189.25").Equal(price))
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_access_key","message":"You have not supplied a valid API Access Key."}}`))
	})

	_, err := client.LatestPrice(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_access_key")
}
