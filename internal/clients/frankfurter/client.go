// Package frankfurter provides ECB reference rates from api.frankfurter.app.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.frankfurter.app"

// Client for the Frankfurter API. Historical fixings are cached in
// client_data since a published fixing never changes.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new Frankfurter client
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cacheRepo *clientdata.Repository, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("client", "frankfurter").Logger(),
		cacheRepo: cacheRepo,
	}
}

// WithBaseURL points the client at another host (tests, proxies)
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type ratesResponse struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

type cachedFixing struct {
	Rate decimal.Decimal `json:"rate"`
	Date string          `json:"date"`
}

// HistoricalRate returns the fixing for date. On weekends and holidays the
// API answers with the previous business day's fixing.
func (c *Client) HistoricalRate(ctx context.Context, from, to domain.Currency, date time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	day := date.Format("2006-01-02")
	cacheKey := fmt.Sprintf("%s:%s:%s", from, to, day)

	var cached cachedFixing
	if c.cacheRepo.Load(ctx, clientdata.TableFXHistory, cacheKey, true, &cached) {
		return cached.Rate, nil
	}

	resp, err := c.fetch(ctx, "/"+day, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	rate := resp.Rates[string(to)]

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(ctx, clientdata.TableFXHistory, cacheKey,
			cachedFixing{Rate: rate, Date: resp.Date}, clientdata.TTLFXHistory); err != nil {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache fixing")
		}
	}

	c.log.Debug().Str("pair", cacheKey).Str("fixing_date", resp.Date).Str("rate", rate.String()).Msg("Fetched fixing")
	return rate, nil
}

// CurrentRate returns the latest published fixing
func (c *Client) CurrentRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	resp, err := c.fetch(ctx, "/latest", from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.Rates[string(to)], nil
}

func (c *Client) fetch(ctx context.Context, path string, from, to domain.Currency) (*ratesResponse, error) {
	params := url.Values{"from": {string(from)}, "to": {string(to)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("frankfurter: failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frankfurter: request failed: %v: %w", err, domain.ErrRateUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("frankfurter: %s%s %s returned status %d: %w",
			from, to, path, resp.StatusCode, domain.ErrRateUnavailable)
	}

	var result ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("frankfurter: failed to parse response: %w", err)
	}

	rate, ok := result.Rates[string(to)]
	if !ok || !rate.IsPositive() {
		return nil, fmt.Errorf("frankfurter: no %s->%s rate: %w", from, to, domain.ErrRateUnavailable)
	}
	return &result, nil
}
