// Package exchangerate provides current exchange rates from exchangerate-api.com.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Client for exchangerate-api.com
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchangerate-api.com client
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cacheRepo *clientdata.Repository, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("client", "exchangerate-api").Logger(),
		cacheRepo: cacheRepo,
	}
}

// WithBaseURL points the client at another host (tests, proxies)
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// cachedExchangeRate is the structure stored in the cache
type cachedExchangeRate struct {
	Rate decimal.Decimal `json:"rate"`
}

// CurrentRate fetches today's rate with cache.
// If the API fails, returns stale cached data if available (stale data > no data).
func (c *Client) CurrentRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	cacheKey := string(from) + ":" + string(to)

	var cached cachedExchangeRate
	if c.cacheRepo.Load(ctx, clientdata.TableFXLatest, cacheKey, true, &cached) {
		c.log.Debug().Str("pair", cacheKey).Str("rate", cached.Rate.String()).Msg("Cache hit")
		return cached.Rate, nil
	}

	rate, err := c.fetch(ctx, from, to)
	if err != nil {
		if c.cacheRepo.Load(ctx, clientdata.TableFXLatest, cacheKey, false, &cached) {
			c.log.Warn().
				Err(err).
				Str("pair", cacheKey).
				Str("rate", cached.Rate.String()).
				Msg("API failed, using stale cached rate")
			return cached.Rate, nil
		}
		return decimal.Zero, fmt.Errorf("exchangerate-api: %s: %v: %w", cacheKey, err, domain.ErrRateUnavailable)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(ctx, clientdata.TableFXLatest, cacheKey,
			cachedExchangeRate{Rate: rate}, clientdata.TTLFXLatest); err != nil {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache exchange rate")
		}
	}

	c.log.Info().Str("pair", cacheKey).Str("rate", rate.String()).Msg("Fetched rate")
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, from)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse response: %w", err)
	}

	rate, exists := result.Rates[string(to)]
	if !exists || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate not found for %s->%s", from, to)
	}
	return rate, nil
}
