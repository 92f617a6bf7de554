// Package alphavantage provides a client for the Alpha Vantage API.
//
// The free tier allows 25 requests per day. The client counts requests,
// refuses to exceed the budget until the next UTC midnight and keeps an
// in-memory response cache so repeated lookups within a run stay free.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"
	dailyLimit     = 25
)

// ErrRateLimitExceeded is returned once the daily request budget is spent
// or the API answers with a throttling note.
type ErrRateLimitExceeded struct{}

func (ErrRateLimitExceeded) Error() string {
	return "alphavantage: rate limit exceeded"
}

// Is lets callers match the rate limit with errors.Is(err, domain.ErrLookupFailure)
func (ErrRateLimitExceeded) Is(target error) bool {
	return target == domain.ErrLookupFailure
}

// ErrInvalidAPIKey is returned when no key is configured or the key is rejected
type ErrInvalidAPIKey struct{}

func (ErrInvalidAPIKey) Error() string {
	return "alphavantage: invalid or missing API key"
}

// ErrSymbolNotFound is returned when a search yields no usable match
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alphavantage: symbol %s not found", e.Symbol)
}

func (ErrSymbolNotFound) Is(target error) bool {
	return target == domain.ErrTickerNotFound || target == domain.ErrLookupFailure
}

// CacheTTL configures how long responses are kept in memory
type CacheTTL struct {
	SymbolSearch time.Duration
	PriceData    time.Duration
}

// DefaultCacheTTL returns the default cache lifetimes
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		SymbolSearch: 24 * time.Hour,
		PriceData:    15 * time.Minute,
	}
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// Match is one SYMBOL_SEARCH result
type Match struct {
	Symbol   string
	Name     string
	Type     string
	Region   string
	Currency string
}

// Client is the Alpha Vantage API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu            sync.Mutex
	requestsToday int
	resetAt       time.Time

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL CacheTTL
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("client", "alphavantage").Logger(),
		resetAt:    nextMidnightUTC(),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   DefaultCacheTTL(),
	}
}

// WithBaseURL points the client at another host (tests, proxies)
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithTimeout overrides the HTTP timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// SetCacheTTL overrides the cache lifetimes
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cacheTTL = ttl
}

// Provider implements domain.QuoteProvider
func (c *Client) Provider() domain.Provider {
	return domain.ProviderAlphaVantage
}

// Search resolves symbol through SYMBOL_SEARCH. With an exchange hint the
// match whose symbol carries that suffix wins, otherwise an exact match or
// the best-ranked one.
func (c *Client) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	params := map[string]string{"keywords": symbol}
	key := buildCacheKey("SYMBOL_SEARCH", params)

	var matches []Match
	if cached, ok := c.getFromCache(key); ok {
		matches = cached.([]Match)
	} else {
		body, err := c.call(ctx, "SYMBOL_SEARCH", params)
		if err != nil {
			return domain.Listing{}, err
		}
		matches, err = parseSymbolSearch(body)
		if err != nil {
			return domain.Listing{}, err
		}
		c.setCache(key, matches, c.ttl().SymbolSearch)
	}

	best, ok := pickMatch(matches, symbol, exchange)
	if !ok {
		return domain.Listing{}, ErrSymbolNotFound{Symbol: symbol}
	}

	currency, err := domain.NormalizeCurrency(best.Currency)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("alphavantage: %s: %w", best.Symbol, err)
	}

	assetType := domain.AssetTypeFromQuoteType(best.Type)
	return domain.Listing{
		Ticker: domain.Ticker{
			Symbol:    best.Symbol,
			Name:      best.Name,
			Currency:  currency,
			Exchange:  best.Region,
			AssetType: assetType,
			Provider:  domain.ProviderAlphaVantage,
		},
		Asset: domain.Asset{Name: best.Name, Type: assetType},
	}, nil
}

// LatestPrice returns the GLOBAL_QUOTE price
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("GLOBAL_QUOTE", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.(decimal.Decimal), nil
	}

	body, err := c.call(ctx, "GLOBAL_QUOTE", params)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := parseGlobalQuotePrice(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("alphavantage: %s: %w", symbol, err)
	}

	c.setCache(key, price, c.ttl().PriceData)
	return price, nil
}

// GetRemainingRequests returns how many requests are left today
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	return dailyLimit - c.requestsToday
}

// ResetDailyCounter restores the full daily budget
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsToday = 0
	c.resetAt = nextMidnightUTC()
}

// ClearCache drops every cached response
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) ttl() CacheTTL {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.cacheTTL
}

// checkRateLimit consumes one request from the daily budget
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	if c.requestsToday >= dailyLimit {
		return ErrRateLimitExceeded{}
	}
	c.requestsToday++
	return nil
}

func (c *Client) maybeResetLocked() {
	if time.Now().UTC().After(c.resetAt) {
		c.requestsToday = 0
		c.resetAt = nextMidnightUTC()
	}
}

func (c *Client) call(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey{}
	}
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	q := url.Values{"function": {function}, "apikey": {c.apiKey}}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: failed to create request: %w", err)
	}

	c.log.Debug().Str("function", function).Int("remaining", c.GetRemainingRequests()).Msg("Request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage: %s returned status %d", function, resp.StatusCode)
	}
	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkAPIError detects the error payloads Alpha Vantage returns with a 200
func (c *Client) checkAPIError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if !bytes.HasPrefix(trimmed, []byte("{")) {
		if bytes.Contains(trimmed, []byte("Thank you for using Alpha Vantage")) {
			return ErrRateLimitExceeded{}
		}
		return fmt.Errorf("alphavantage: unexpected response: %.80s", trimmed)
	}

	var probe struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return fmt.Errorf("alphavantage: failed to parse response: %w", err)
	}

	switch {
	case probe.Note != "", probe.Information != "":
		c.log.Warn().Str("note", probe.Note+probe.Information).Msg("Throttled")
		return ErrRateLimitExceeded{}
	case strings.Contains(probe.ErrorMessage, "apikey"):
		return ErrInvalidAPIKey{}
	case probe.ErrorMessage != "":
		return fmt.Errorf("alphavantage: %s", probe.ErrorMessage)
	}
	return nil
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// buildCacheKey renders function plus sorted params, never the API key
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(function)
	for _, k := range keys {
		sb.WriteString("&")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

func pickMatch(matches []Match, symbol, exchange string) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	if exchange != "" {
		suffix := "." + strings.ToUpper(exchange)
		for _, m := range matches {
			if strings.HasSuffix(strings.ToUpper(m.Symbol), suffix) {
				return m, true
			}
		}
	}
	for _, m := range matches {
		if strings.EqualFold(m.Symbol, symbol) {
			return m, true
		}
	}
	return matches[0], true
}

func parseSymbolSearch(body []byte) ([]Match, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("alphavantage: failed to parse search: %w", err)
	}

	raw, err := jsonpath.Get("$.bestMatches[*]", doc)
	if err != nil {
		return nil, nil
	}
	items, _ := raw.([]interface{})

	matches := make([]Match, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Symbol:   stringField(m, "1. symbol"),
			Name:     stringField(m, "2. name"),
			Type:     stringField(m, "3. type"),
			Region:   stringField(m, "4. region"),
			Currency: stringField(m, "8. currency"),
		})
	}
	return matches, nil
}

func parseGlobalQuotePrice(body []byte) (decimal.Decimal, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse quote: %w", err)
	}

	raw, err := jsonpath.Get(`$["Global Quote"]["05. price"]`, doc)
	if err != nil {
		return decimal.Zero, fmt.Errorf("no quote: %w", domain.ErrLookupFailure)
	}
	s, _ := raw.(string)
	price, err := decimal.NewFromString(s)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", s, domain.ErrLookupFailure)
	}
	return price, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
