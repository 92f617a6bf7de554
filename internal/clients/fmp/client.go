// Package fmp provides a client for the Financial Modeling Prep API.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://financialmodelingprep.com"

// Client is the Financial Modeling Prep API client.
// It serves symbol search, latest quotes and historical FX fixings.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new FMP client
func NewClient(apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", "fmp").Logger(),
	}
}

// WithBaseURL points the client at another host (tests, proxies)
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type searchResult struct {
	Symbol           string `json:"symbol"`
	Name             string `json:"name"`
	Currency         string `json:"currency"`
	ExchangeFullName string `json:"exchangeFullName"`
	Exchange         string `json:"exchange"`
}

type quote struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Exchange string          `json:"exchange"`
}

type eodLight struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"`
	Price  decimal.Decimal `json:"price"`
}

// Provider implements domain.QuoteProvider
func (c *Client) Provider() domain.Provider {
	return domain.ProviderFMP
}

// Search resolves symbol through /stable/search-symbol, narrowing by exchange when given
func (c *Client) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	params := url.Values{"query": {symbol}}
	if exchange != "" {
		params.Set("exchange", exchange)
	}

	var results []searchResult
	if err := c.get(ctx, "/stable/search-symbol", params, &results); err != nil {
		return domain.Listing{}, err
	}
	if len(results) == 0 {
		return domain.Listing{}, fmt.Errorf("fmp: %s: %w", symbol, domain.ErrTickerNotFound)
	}

	best := results[0]
	for _, r := range results {
		if strings.EqualFold(r.Symbol, symbol) {
			best = r
			break
		}
	}

	currency, err := domain.NormalizeCurrency(best.Currency)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("fmp: %s: %w", best.Symbol, err)
	}

	return domain.Listing{
		Ticker: domain.Ticker{
			Symbol:    best.Symbol,
			Name:      best.Name,
			Currency:  currency,
			Exchange:  best.Exchange,
			AssetType: domain.AssetTypeStock,
			Provider:  domain.ProviderFMP,
		},
		Asset: domain.Asset{Name: best.Name, Type: domain.AssetTypeStock},
	}, nil
}

// LatestPrice returns the last traded price from /stable/quote
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var quotes []quote
	if err := c.get(ctx, "/stable/quote", url.Values{"symbol": {symbol}}, &quotes); err != nil {
		return decimal.Zero, err
	}
	if len(quotes) == 0 || !quotes[0].Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("fmp: no quote for %s: %w", symbol, domain.ErrLookupFailure)
	}
	return quotes[0].Price, nil
}

// HistoricalRate returns the end-of-day FX fixing converting from into to on date
func (c *Client) HistoricalRate(ctx context.Context, from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	day := date.Format("2006-01-02")
	params := url.Values{
		"symbol": {string(from) + string(to)},
		"from":   {day},
		"to":     {day},
	}

	var bars []eodLight
	if err := c.get(ctx, "/stable/historical-price-eod/light", params, &bars); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
	}
	if len(bars) == 0 || !bars[0].Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("fmp: no %s%s fixing on %s: %w", from, to, day, domain.ErrRateUnavailable)
	}
	return bars[0].Price, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("fmp: API key not configured")
	}
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("fmp: failed to create request: %w", err)
	}

	c.log.Debug().Str("path", path).Str("query", params.Get("query")+params.Get("symbol")).Msg("Request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fmp: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fmp: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fmp: %s returned status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		// Errors come back as {"Error Message": "..."} with a 200 on some plans
		var apiErr struct {
			Message string `json:"Error Message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("fmp: %s", apiErr.Message)
		}
		return fmt.Errorf("fmp: failed to parse response: %w", err)
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
