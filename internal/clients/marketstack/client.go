// Package marketstack provides a client for the Marketstack v2 API.
package marketstack

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

const defaultBaseURL = "https://api.marketstack.com/v2"

// Marketstack ticker metadata carries the exchange country but not the
// trading currency, so the currency is derived from the country.
var countryCurrency = map[string]domain.Currency{
	"US": "USD", "GB": "GBP", "JP": "JPY", "CN": "CNY", "HK": "HKD",
	"IN": "INR", "DE": "EUR", "FR": "EUR", "IT": "EUR", "ES": "EUR",
	"NL": "EUR", "BE": "EUR", "FI": "EUR", "AT": "EUR", "IE": "EUR",
	"PT": "EUR", "CH": "CHF", "CA": "CAD", "AU": "AUD", "KR": "KRW",
	"BR": "BRL", "SE": "SEK", "SG": "SGD", "ZA": "ZAR", "MX": "MXN",
	"RU": "RUB", "SA": "SAR", "TR": "TRY", "TW": "TWD", "ID": "IDR",
	"TH": "THB", "MY": "MYR", "PL": "PLN", "NO": "NOK", "DK": "DKK",
	"AE": "AED", "AR": "ARS", "CL": "CLP", "NZ": "NZD",
}

// CurrencyForCountry maps an ISO 3166 alpha-2 country code to its currency
func CurrencyForCountry(country string) (domain.Currency, bool) {
	c, ok := countryCurrency[strings.ToUpper(strings.TrimSpace(country))]
	return c, ok
}

// Client is the Marketstack API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new Marketstack client
func NewClient(apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", "marketstack").Logger(),
	}
}

// WithBaseURL points the client at another host (tests, proxies)
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type tickerInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	ISIN     string `json:"isin"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
	Exchange struct {
		Acronym     string `json:"acronym"`
		MIC         string `json:"mic"`
		CountryCode string `json:"country_code"`
	} `json:"stock_exchange"`
}

type eodResponse struct {
	Data []struct {
		Symbol        string          `json:"symbol"`
		Close         decimal.Decimal `json:"close"`
		PriceCurrency string          `json:"price_currency"`
		Date          string          `json:"date"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Provider implements domain.QuoteProvider
func (c *Client) Provider() domain.Provider {
	return domain.ProviderMarketstack
}

// Search looks up tickers/{symbol}. The exchange hint is folded into the
// symbol the way Marketstack spells non-US listings (SYM.EXCH).
func (c *Client) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	lookup := symbol
	if exchange != "" {
		lookup = symbol + "." + exchange
	}

	var info tickerInfo
	if err := c.get(ctx, "/tickers/"+url.PathEscape(lookup), nil, &info); err != nil {
		return domain.Listing{}, err
	}
	if info.Symbol == "" {
		return domain.Listing{}, fmt.Errorf("marketstack: %s: %w", lookup, domain.ErrTickerNotFound)
	}

	currency, ok := CurrencyForCountry(info.Exchange.CountryCode)
	if !ok {
		return domain.Listing{}, fmt.Errorf("marketstack: %s: no currency for country %q: %w",
			info.Symbol, info.Exchange.CountryCode, domain.ErrLookupFailure)
	}

	return domain.Listing{
		Ticker: domain.Ticker{
			Symbol:    info.Symbol,
			Name:      info.Name,
			Currency:  currency,
			Exchange:  info.Exchange.Acronym,
			AssetType: domain.AssetTypeStock,
			Provider:  domain.ProviderMarketstack,
		},
		Asset: domain.Asset{
			Name:     info.Name,
			Type:     domain.AssetTypeStock,
			ISIN:     info.ISIN,
			Sector:   info.Sector,
			Industry: info.Industry,
		},
	}, nil
}

// LatestPrice returns the latest end-of-day close
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var resp eodResponse
	if err := c.get(ctx, "/eod/latest", url.Values{"symbols": {symbol}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if len(resp.Data) == 0 || !resp.Data[0].Close.IsPositive() {
		return decimal.Zero, fmt.Errorf("marketstack: no close for %s: %w", symbol, domain.ErrLookupFailure)
	}
	return resp.Data[0].Close, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("marketstack: API key not configured")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("marketstack: failed to create request: %w", err)
	}

	c.log.Debug().Str("path", path).Msg("Request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("marketstack: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("marketstack: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("marketstack: %s: %w", path, domain.ErrTickerNotFound)
		}
		if apiErr.Error.Message != "" {
			return fmt.Errorf("marketstack: %s (%s)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("marketstack: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("marketstack: failed to parse response: %w", err)
	}
	return nil
}
