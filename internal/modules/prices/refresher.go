// Package prices refreshes the last known price of every stored ticker.
package prices

import (
	"context"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/currency"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PriceSource fetches a price for a stored ticker
type PriceSource interface {
	LatestPrice(ctx context.Context, ticker domain.Ticker) (decimal.Decimal, error)
}

// TickerStore lists tickers and records refreshed prices
type TickerStore interface {
	List(ctx context.Context) ([]domain.Ticker, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, at time.Time) error
}

// RefreshReport lists the outcome of one refresh cycle
type RefreshReport struct {
	StartedAt time.Time                           `json:"started_at"`
	Rates     map[domain.Currency]decimal.Decimal `json:"rates"`
	Updated   []string                            `json:"updated"`
	Failed    []domain.SymbolError                `json:"-"`
	Duration  time.Duration                       `json:"duration"`
}

// FailedSymbols returns the symbols whose refresh failed
func (r *RefreshReport) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Symbol)
	}
	return out
}

// Refresher fans out one price lookup per ticker. Each success is written
// immediately; failures are collected and never cancel sibling lookups.
type Refresher struct {
	store       TickerStore
	source      PriceSource
	rates       domain.CurrentRateProvider
	base        domain.Currency
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

// NewRefresher creates a refresher. rates may be nil, in which case no
// exchange rates are fetched for the cycle.
func NewRefresher(
	store TickerStore,
	source PriceSource,
	rates domain.CurrentRateProvider,
	base domain.Currency,
	concurrency int,
	log zerolog.Logger,
) *Refresher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Refresher{
		store:       store,
		source:      source,
		rates:       rates,
		base:        base,
		concurrency: concurrency,
		now:         time.Now,
		log:         log.With().Str("service", "price_refresh").Logger(),
	}
}

// RefreshAll refreshes every stored ticker. When any ticker fails the
// report is still returned, together with a *domain.PartialRefreshError
// listing every failure; successful updates stay committed.
func (r *Refresher) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	report := &RefreshReport{StartedAt: r.now().UTC()}

	list, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	report.Rates = r.warmRates(ctx, list)

	results := make([]error, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range list {
		i, t := i, t
		g.Go(func() error {
			results[i] = r.refreshOne(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range results {
		symbol := list[i].Symbol
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("Price refresh failed")
			report.Failed = append(report.Failed, domain.SymbolError{Symbol: symbol, Err: err})
			continue
		}
		report.Updated = append(report.Updated, symbol)
	}
	report.Duration = r.now().UTC().Sub(report.StartedAt)

	r.log.Info().
		Int("tickers", len(list)).
		Int("updated", len(report.Updated)).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Price refresh completed")

	if len(report.Failed) > 0 {
		return report, &domain.PartialRefreshError{Failures: report.Failed}
	}
	return report, nil
}

func (r *Refresher) refreshOne(ctx context.Context, t domain.Ticker) error {
	price, err := r.source.LatestPrice(ctx, t)
	if err != nil {
		return err
	}
	return r.store.UpdatePrice(ctx, t.ID, price, r.now().UTC())
}

// warmRates builds the cycle's currency to base rates. Failures are logged
// and leave the currency out of the map.
func (r *Refresher) warmRates(ctx context.Context, list []domain.Ticker) map[domain.Currency]decimal.Decimal {
	if r.rates == nil {
		return nil
	}

	currencies := make([]domain.Currency, 0, len(list))
	for _, t := range list {
		currencies = append(currencies, t.Currency)
	}

	cache := currency.NewRateCache(r.rates, r.base)
	for cur, err := range cache.Warm(ctx, currencies, r.concurrency) {
		r.log.Warn().Err(err).Str("currency", string(cur)).Msg("Exchange rate unavailable")
	}
	return cache.Snapshot()
}
