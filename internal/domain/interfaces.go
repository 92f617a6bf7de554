package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteProvider is the capability every quote data source exposes
type QuoteProvider interface {
	Provider() Provider
	// Search resolves a symbol (with an optional exchange hint) to a listing
	Search(ctx context.Context, symbol, exchange string) (Listing, error)
	// LatestPrice returns the most recent price in the ticker's native currency
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// HistoricalRateProvider returns the multiplier converting one unit of
// `from` into `to` on a given date
type HistoricalRateProvider interface {
	HistoricalRate(ctx context.Context, from, to Currency, date time.Time) (decimal.Decimal, error)
}

// CurrentRateProvider returns today's multiplier converting `from` into `to`
type CurrentRateProvider interface {
	CurrentRate(ctx context.Context, from, to Currency) (decimal.Decimal, error)
}
