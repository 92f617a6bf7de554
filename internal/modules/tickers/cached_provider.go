package tickers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CachedProvider decorates a domain.QuoteProvider with the persistent
// client_data cache. Fresh entries short-circuit the network.
type CachedProvider struct {
	inner     domain.QuoteProvider
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewCachedProvider wraps inner. A nil cacheRepo returns inner unchanged.
func NewCachedProvider(inner domain.QuoteProvider, cacheRepo *clientdata.Repository, log zerolog.Logger) domain.QuoteProvider {
	if cacheRepo == nil {
		return inner
	}
	return &CachedProvider{
		inner:     inner,
		cacheRepo: cacheRepo,
		log:       log.With().Str("component", "cached_provider").Str("provider", inner.Provider().Code()).Logger(),
	}
}

type cachedQuote struct {
	Price decimal.Decimal `json:"price"`
}

// Provider implements domain.QuoteProvider
func (c *CachedProvider) Provider() domain.Provider {
	return c.inner.Provider()
}

// Search implements domain.QuoteProvider
func (c *CachedProvider) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	key := c.key(symbol, exchange)

	var cached domain.Listing
	if c.cacheRepo.Load(ctx, clientdata.TableSymbolSearch, key, true, &cached) {
		return cached, nil
	}

	listing, err := c.inner.Search(ctx, symbol, exchange)
	if err != nil {
		return domain.Listing{}, err
	}

	if err := c.cacheRepo.Store(ctx, clientdata.TableSymbolSearch, key, listing, clientdata.TTLSymbolSearch); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache search result")
	}
	return listing, nil
}

// LatestPrice implements domain.QuoteProvider
func (c *CachedProvider) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := c.key(symbol, "")

	var cached cachedQuote
	if c.cacheRepo.Load(ctx, clientdata.TableLatestQuotes, key, true, &cached) {
		return cached.Price, nil
	}

	// Stale prices are never served
	price, err := c.inner.LatestPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := c.cacheRepo.Store(ctx, clientdata.TableLatestQuotes, key, cachedQuote{Price: price}, clientdata.TTLLatestQuote); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to cache quote")
	}
	return price, nil
}

func (c *CachedProvider) key(symbol, exchange string) string {
	return fmt.Sprintf("%s:%s:%s", c.inner.Provider().Code(), strings.ToUpper(symbol), strings.ToUpper(exchange))
}
