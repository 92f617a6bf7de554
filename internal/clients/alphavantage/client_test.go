package alphavantage

import (
	"context"
	"errors"
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

const searchBody = `{
	"bestMatches": [
		{
			"1. symbol": "SHEL.LON",
			"2. name": "Shell plc",
			"3. type": "Equity",
			"4. region": "United Kingdom",
			"8. currency": "GBX",
			"9. matchScore": "0.8000"
		},
		{
			"1. symbol": "IBM",
			"2. name": "International Business Machines Corp",
			"3. type": "Equity",
			"4. region": "United States",
			"5. marketOpen": "09:30",
			"6. marketClose": "16:00",
			"7. timezone": "UTC-04",
			"8. currency": "USD",
			"9. matchScore": "1.0000"
		}
	]
}`

const quoteBody = `{
	"Global Quote": {
		"01. symbol": "IBM",
		"02. open": "185.00",
		"05. price": "186.20",
		"07. latest trading day": "2024-01-15"
	}
}`

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 25, client.GetRemainingRequests())
	assert.Equal(t, domain.ProviderAlphaVantage, client.Provider())
}

// TestRateLimiting tests the rate limiting functionality.
func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 25; i++ {
		remaining := client.GetRemainingRequests()
		assert.Equal(t, 25-i, remaining)
		err := client.checkRateLimit()
		require.NoError(t, err)
	}

	// 26th request should fail
	err := client.checkRateLimit()
	assert.Error(t, err)
	assert.IsType(t, ErrRateLimitExceeded{}, err)
	assert.True(t, errors.Is(err, domain.ErrLookupFailure))
}

// TestResetDailyCounter tests counter reset.
func TestResetDailyCounter(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	for i := 0; i < 10; i++ {
		_ = client.checkRateLimit()
	}
	assert.Equal(t, 15, client.GetRemainingRequests())

	client.ResetDailyCounter()
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestCaching tests the cache functionality.
func TestCaching(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("test-key", "test data", time.Hour)

	cached, ok := client.getFromCache("test-key")
	assert.True(t, ok)
	assert.Equal(t, "test data", cached)

	_, ok = client.getFromCache("non-existent")
	assert.False(t, ok)
}

// TestCacheExpiration tests cache expiration.
func TestCacheExpiration(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("test-key", "test data", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := client.getFromCache("test-key")
	assert.False(t, ok)
}

// TestClearCache tests cache clearing.
func TestClearCache(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("key1", "data1", time.Hour)
	client.setCache("key2", "data2", time.Hour)

	client.ClearCache()

	_, ok1 := client.getFromCache("key1")
	_, ok2 := client.getFromCache("key2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

// TestBuildCacheKey tests cache key generation.
func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		function string
		params   map[string]string
		expected string
	}{
		{"Simple function", "GLOBAL_QUOTE", map[string]string{"symbol": "IBM"}, "GLOBAL_QUOTE&symbol=IBM"},
		{"Sorted params", "SYMBOL_SEARCH", map[string]string{"keywords": "SHEL", "datatype": "json"}, "SYMBOL_SEARCH&datatype=json&keywords=SHEL"},
		{"With apikey excluded", "GLOBAL_QUOTE", map[string]string{"symbol": "MSFT", "apikey": "secret"}, "GLOBAL_QUOTE&symbol=MSFT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := buildCacheKey(tt.function, tt.params)
			assert.Equal(t, tt.expected, key)
			assert.NotContains(t, key, "apikey=")
		})
	}
}

// TestParseSymbolSearch tests symbol search parsing.
func TestParseSymbolSearch(t *testing.T) {
	matches, err := parseSymbolSearch([]byte(searchBody))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "IBM", matches[1].Symbol)
	assert.Equal(t, "International Business Machines Corp", matches[1].Name)
	assert.Equal(t, "Equity", matches[1].Type)
	assert.Equal(t, "United States", matches[1].Region)
	assert.Equal(t, "USD", matches[1].Currency)
}

func TestParseSymbolSearchNoMatches(t *testing.T) {
	matches, err := parseSymbolSearch([]byte(`{"bestMatches": []}`))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

// TestParseGlobalQuotePrice tests global quote parsing.
func TestParseGlobalQuotePrice(t *testing.T) {
	price, err := parseGlobalQuotePrice([]byte(quoteBody))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("186.20").Equal(price))

	_, err = parseGlobalQuotePrice([]byte(`{"Global Quote": {}}`))
	assert.ErrorIs(t, err, domain.ErrLookupFailure)
}

func TestPickMatch(t *testing.T) {
	matches, err := parseSymbolSearch([]byte(searchBody))
	require.NoError(t, err)

	m, ok := pickMatch(matches, "SHEL", "LON")
	require.True(t, ok)
	assert.Equal(t, "SHEL.LON", m.Symbol)

	m, ok = pickMatch(matches, "ibm", "")
	require.True(t, ok)
	assert.Equal(t, "IBM", m.Symbol)

	m, ok = pickMatch(matches, "XYZ", "")
	require.True(t, ok)
	assert.Equal(t, "SHEL.LON", m.Symbol)

	_, ok = pickMatch(nil, "XYZ", "")
	assert.False(t, ok)
}

// TestErrorTypes tests error type implementations.
func TestErrorTypes(t *testing.T) {
	t.Run("ErrRateLimitExceeded", func(t *testing.T) {
		err := ErrRateLimitExceeded{}
		assert.Contains(t, err.Error(), "rate limit")
	})

	t.Run("ErrInvalidAPIKey", func(t *testing.T) {
		err := ErrInvalidAPIKey{}
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("ErrSymbolNotFound", func(t *testing.T) {
		err := ErrSymbolNotFound{Symbol: "XYZ"}
		assert.Contains(t, err.Error(), "XYZ")
		assert.ErrorIs(t, err, domain.ErrTickerNotFound)
	})
}

// TestSetCacheTTL tests custom cache TTL configuration.
func TestSetCacheTTL(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.SetCacheTTL(CacheTTL{SymbolSearch: 48 * time.Hour, PriceData: 30 * time.Minute})

	assert.Equal(t, 48*time.Hour, client.cacheTTL.SymbolSearch)
	assert.Equal(t, 30*time.Minute, client.cacheTTL.PriceData)
}

// TestDefaultCacheTTL tests default TTL values.
func TestDefaultCacheTTL(t *testing.T) {
	ttl := DefaultCacheTTL()

	assert.Equal(t, 24*time.Hour, ttl.SymbolSearch)
	assert.Equal(t, 15*time.Minute, ttl.PriceData)
}

// TestAPIErrorDetection tests detection of API error responses.
func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	tests := []struct {
		name        string
		body        string
		expectError bool
		errorType   error
	}{
		{"Rate limit message", `{"Note": "API call frequency is limited"}`, true, ErrRateLimitExceeded{}},
		{"Information message", `{"Information": "premium endpoint"}`, true, ErrRateLimitExceeded{}},
		{"Error message", `{"Error Message": "Invalid API call"}`, true, nil},
		{"Bad key", `{"Error Message": "the parameter apikey is invalid or missing"}`, true, ErrInvalidAPIKey{}},
		{"Thank you message", `Thank you for using Alpha Vantage!`, true, ErrRateLimitExceeded{}},
		{"Valid response", `{"data": "valid"}`, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body))
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.errorType != nil {
				assert.IsType(t, tt.errorType, err)
			}
		})
	}
}

// TestNextMidnightUTC tests the midnight calculation.
func TestNextMidnightUTC(t *testing.T) {
	midnight := nextMidnightUTC()

	now := time.Now().UTC()
	assert.True(t, midnight.After(now))
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, 0, midnight.Second())
}

func TestSearchAndLatestPrice(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		switch r.URL.Query().Get("function") {
		case "SYMBOL_SEARCH":
			assert.Equal(t, "IBM", r.URL.Query().Get("keywords"))
			_, _ = w.Write([]byte(searchBody))
		case "GLOBAL_QUOTE":
			_, _ = w.Write([]byte(quoteBody))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient("test-key", zerolog.Nop()).WithBaseURL(server.URL)
	ctx := context.Background()

	listing, err := client.Search(ctx, "IBM", "")
	require.NoError(t, err)
	assert.Equal(t, "IBM", listing.Ticker.Symbol)
	assert.Equal(t, domain.CurrencyUSD, listing.Ticker.Currency)
	assert.Equal(t, domain.AssetTypeStock, listing.Ticker.AssetType)

	price, err := client.LatestPrice(ctx, "IBM")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("186.20").Equal(price))

	// Both answers come from the cache now
	_, err = client.Search(ctx, "IBM", "")
	require.NoError(t, err)
	_, err = client.LatestPrice(ctx, "IBM")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 23, client.GetRemainingRequests())
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient("", zerolog.Nop())

	_, err := client.LatestPrice(context.Background(), "IBM")
	assert.IsType(t, ErrInvalidAPIKey{}, err)
}

// BenchmarkCacheOperations benchmarks cache read/write.
func BenchmarkCacheOperations(b *testing.B) {
	client := NewClient("test-key", zerolog.Nop())

	b.Run("Set", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			client.setCache("key", "value", time.Hour)
		}
	})

	b.Run("Get", func(b *testing.B) {
		client.setCache("key", "value", time.Hour)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = client.getFromCache("key")
		}
	})
}

func TestInterfaceImplementation(t *testing.T) {
	var _ domain.QuoteProvider = (*Client)(nil)
}
