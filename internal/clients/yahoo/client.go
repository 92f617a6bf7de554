// Package yahoo provides a keyless quote provider backed by go-yfinance.
package yahoo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// CurrencyForSymbol infers the trading currency from a Yahoo symbol suffix
func CurrencyForSymbol(symbol string) (domain.Currency, bool) {
	suffix := ""
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		suffix = strings.ToUpper(symbol[i+1:])
	}
	return domain.CurrencyForExchangeSuffix(suffix)
}

// Client is a Yahoo Finance quote provider
type Client struct {
	log zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// Provider implements domain.QuoteProvider
func (c *Client) Provider() domain.Provider {
	return domain.ProviderYahoo
}

// Search resolves a symbol through the quote summary. An exchange hint is
// appended as the Yahoo venue suffix.
func (c *Client) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return domain.Listing{}, err
	}

	yahooSymbol := composeSymbol(symbol, exchange)

	t, err := ticker.New(yahooSymbol)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("yahoo: failed to create ticker %s: %w", yahooSymbol, err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil || info == nil {
		return domain.Listing{}, fmt.Errorf("yahoo: %s: %v: %w", yahooSymbol, err, domain.ErrTickerNotFound)
	}

	name := info.LongName
	if name == "" {
		name = info.ShortName
	}
	if name == "" {
		return domain.Listing{}, fmt.Errorf("yahoo: %s: %w", yahooSymbol, domain.ErrTickerNotFound)
	}

	currency, ok := CurrencyForSymbol(yahooSymbol)
	if !ok {
		return domain.Listing{}, fmt.Errorf("yahoo: %s: unknown venue suffix: %w", yahooSymbol, domain.ErrLookupFailure)
	}

	assetType := domain.AssetTypeFromQuoteType(info.QuoteType)
	c.log.Debug().Str("symbol", yahooSymbol).Str("quote_type", info.QuoteType).Msg("Resolved")

	return domain.Listing{
		Ticker: domain.Ticker{
			Symbol:    yahooSymbol,
			Name:      name,
			Currency:  currency,
			Exchange:  info.Exchange,
			AssetType: assetType,
			Provider:  domain.ProviderYahoo,
		},
		Asset: domain.Asset{
			Name:     name,
			Type:     assetType,
			Industry: info.Industry,
		},
	}, nil
}

// LatestPrice returns the regular market price, falling back to pre/post
// market and then to the quote summary
func (c *Client) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("yahoo: failed to create ticker %s: %w", symbol, err)
	}
	defer t.Close()

	quote, err := t.Quote()
	if err == nil && quote != nil {
		for _, p := range []float64{quote.RegularMarketPrice, quote.PreMarketPrice, quote.PostMarketPrice} {
			if p > 0 {
				return decimal.NewFromFloat(p), nil
			}
		}
	}

	info, err := t.Info()
	if err == nil && info != nil {
		if info.CurrentPrice > 0 {
			return decimal.NewFromFloat(info.CurrentPrice), nil
		}
		if info.RegularMarketPreviousClose > 0 {
			return decimal.NewFromFloat(info.RegularMarketPreviousClose), nil
		}
	}

	return decimal.Zero, fmt.Errorf("yahoo: no valid price for %s: %w", symbol, domain.ErrLookupFailure)
}

func composeSymbol(symbol, exchange string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exchange == "" || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + "." + strings.ToUpper(exchange)
}
