// Package tickers resolves CSV symbols to provider listings and stores them.
package tickers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Resolver tries quote providers in priority order and returns the first
// successful answer
type Resolver struct {
	providers map[domain.Provider]domain.QuoteProvider
	log       zerolog.Logger
}

// NewResolver creates a resolver over the configured providers. Providers
// that are not configured are skipped during fallback.
func NewResolver(providers []domain.QuoteProvider, log zerolog.Logger) *Resolver {
	m := make(map[domain.Provider]domain.QuoteProvider, len(providers))
	for _, p := range providers {
		m[p.Provider()] = p
	}
	return &Resolver{
		providers: m,
		log:       log.With().Str("service", "ticker_resolver").Logger(),
	}
}

// Providers returns the configured providers in fallback order
func (r *Resolver) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.providers))
	for _, p := range domain.ProviderPriority {
		if _, ok := r.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// order puts preferred first, followed by the remaining configured
// providers in domain.ProviderPriority order
func (r *Resolver) order(preferred domain.Provider) []domain.QuoteProvider {
	out := make([]domain.QuoteProvider, 0, len(r.providers))
	if p, ok := r.providers[preferred]; ok {
		out = append(out, p)
	}
	for _, code := range domain.ProviderPriority {
		if code == preferred {
			continue
		}
		if p, ok := r.providers[code]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Resolve finds a listing for symbol. A SYM.EXCH spelling is searched as
// SYM with exchange hint EXCH. Fails with domain.ErrTickerNotFound wrapped
// in a *domain.SymbolError when every provider fails.
func (r *Resolver) Resolve(ctx context.Context, symbol string, preferred domain.Provider) (domain.Listing, error) {
	base, hint := SplitSymbol(symbol)
	chain := r.order(preferred)
	if len(chain) == 0 {
		return domain.Listing{}, &domain.SymbolError{Symbol: symbol, Err: fmt.Errorf("no providers configured: %w", domain.ErrTickerNotFound)}
	}

	var errs []error
	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return domain.Listing{}, err
		}

		listing, err := p.Search(ctx, base, hint)
		if err == nil && listing.Ticker.Symbol != "" {
			if p.Provider() != preferred {
				r.log.Warn().
					Str("symbol", symbol).
					Str("preferred", preferred.Code()).
					Str("provider", p.Provider().Code()).
					Msg("Resolved through fallback provider")
			}
			listing.Ticker.Provider = p.Provider()
			return listing, nil
		}
		if err == nil {
			err = domain.ErrTickerNotFound
		}

		r.log.Debug().Err(err).Str("symbol", symbol).Str("provider", p.Provider().Code()).Msg("Provider search failed")
		errs = append(errs, fmt.Errorf("%s: %w", p.Provider().Code(), err))
	}

	return domain.Listing{}, &domain.SymbolError{
		Symbol: symbol,
		Err:    fmt.Errorf("%w: %w", domain.ErrTickerNotFound, errors.Join(errs...)),
	}
}

// LatestPrice fetches a price for a stored ticker, asking the provider that
// resolved it first. Fallback providers are asked with the stored symbol.
func (r *Resolver) LatestPrice(ctx context.Context, ticker domain.Ticker) (decimal.Decimal, error) {
	chain := r.order(ticker.Provider)
	if len(chain) == 0 {
		return decimal.Zero, fmt.Errorf("no providers configured: %w", domain.ErrLookupFailure)
	}

	var errs []error
	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return decimal.Zero, err
		}

		price, err := p.LatestPrice(ctx, ticker.Symbol)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %s", price)
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Provider().Code(), err))
	}

	return decimal.Zero, fmt.Errorf("%w: %w", domain.ErrLookupFailure, errors.Join(errs...))
}

// SplitSymbol separates a trailing exchange hint from a CSV symbol. Only
// known venue suffixes are split off, so "BRK.B" stays whole.
func SplitSymbol(symbol string) (base, exchange string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.LastIndex(symbol, "."); i > 0 && domain.IsExchangeSuffix(symbol[i+1:]) {
		return symbol[:i], symbol[i+1:]
	}
	return symbol, ""
}
