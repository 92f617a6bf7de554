package currency

import (
	"context"
	"sync"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RateCache maps currency codes to today's multiplier into a single base
// currency. It lives for one request or refresh cycle; nothing is shared
// between cycles.
type RateCache struct {
	source domain.CurrentRateProvider
	base   domain.Currency

	mu    sync.Mutex
	rates map[domain.Currency]decimal.Decimal
}

// NewRateCache creates an empty cache converting into base
func NewRateCache(source domain.CurrentRateProvider, base domain.Currency) *RateCache {
	return &RateCache{
		source: source,
		base:   base,
		rates:  map[domain.Currency]decimal.Decimal{base: decimal.NewFromInt(1)},
	}
}

// Base returns the currency every cached rate converts into
func (c *RateCache) Base() domain.Currency {
	return c.base
}

// Rate returns the multiplier converting one unit of from into the base
// currency, fetching it on first use
func (c *RateCache) Rate(ctx context.Context, from domain.Currency) (decimal.Decimal, error) {
	c.mu.Lock()
	rate, ok := c.rates[from]
	c.mu.Unlock()
	if ok {
		return rate, nil
	}

	rate, err := c.source.CurrentRate(ctx, from, c.base)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.rates[from] = rate
	c.mu.Unlock()
	return rate, nil
}

// Warm fetches every currency concurrently. Failures are returned per
// currency and leave the cache without an entry for it.
func (c *RateCache) Warm(ctx context.Context, currencies []domain.Currency, limit int) map[domain.Currency]error {
	var (
		mu     sync.Mutex
		failed = make(map[domain.Currency]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	seen := make(map[domain.Currency]bool, len(currencies))
	for _, cur := range currencies {
		if seen[cur] {
			continue
		}
		seen[cur] = true
		cur := cur
		g.Go(func() error {
			if _, err := c.Rate(gctx, cur); err != nil {
				mu.Lock()
				failed[cur] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Len returns the number of cached currencies including the base
func (c *RateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rates)
}

// Snapshot returns a copy of every cached rate
func (c *RateCache) Snapshot() map[domain.Currency]decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.Currency]decimal.Decimal, len(c.rates))
	for k, v := range c.rates {
		out[k] = v
	}
	return out
}
