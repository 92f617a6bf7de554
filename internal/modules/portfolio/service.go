// Package portfolio projects ledger state and current prices into holdings.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/currency"
	"github.com/aristath/portfolio-tracker/internal/modules/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultMaxPriceAge is how old a price may be before the summary flags it
const defaultMaxPriceAge = 48 * time.Hour

var hundred = decimal.NewFromInt(100)

// SnapshotSource returns the latest cached state of every (ticker, broker) pair
type SnapshotSource interface {
	LatestPerGroup(ctx context.Context) ([]ledger.GroupSnapshot, error)
}

// TickerSource lists stored tickers with their last known prices
type TickerSource interface {
	List(ctx context.Context) ([]domain.Ticker, error)
}

// HoldingFilter narrows a projection. Closed positions (zero units) are
// omitted unless IncludeClosed is set.
type HoldingFilter struct {
	Broker        string
	IncludeClosed bool
}

// Allocation is the share of market value held in one bucket
type Allocation struct {
	Name    string          `json:"name"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// Summary totals a holdings projection in the base currency
type Summary struct {
	BaseCurrency          domain.Currency `json:"base_currency"`
	TotalMarketValue      decimal.Decimal `json:"total_market_value"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	UnpricedCost          decimal.Decimal `json:"unpriced_cost"`
	UnrealizedGain        decimal.Decimal `json:"unrealized_gain"`
	UnrealizedGainPercent decimal.Decimal `json:"unrealized_gain_percent"`
	RealizedGain          decimal.Decimal `json:"realized_gain"`
	DividendsCollected    decimal.Decimal `json:"dividends_collected"`
	TotalGain             decimal.Decimal `json:"total_gain"`
	ByAssetType           []Allocation    `json:"by_asset_type"`
	ByBroker              []Allocation    `json:"by_broker"`
	ByCurrency            []Allocation    `json:"by_currency"`
	StaleSymbols          []string        `json:"stale_symbols"`
	UnpricedSymbols       []string        `json:"unpriced_symbols"`
	Holdings              int             `json:"holdings"`
}

// Service computes holdings on demand. Nothing is stored: every call reads
// the latest ledger state, the tickers' last prices and today's rates.
type Service struct {
	snapshots   SnapshotSource
	tickers     TickerSource
	rates       domain.CurrentRateProvider
	base        domain.Currency
	maxPriceAge time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates a holdings projector converting into base
func NewService(
	snapshots SnapshotSource,
	tickers TickerSource,
	rates domain.CurrentRateProvider,
	base domain.Currency,
	log zerolog.Logger,
) *Service {
	return &Service{
		snapshots:   snapshots,
		tickers:     tickers,
		rates:       rates,
		base:        base,
		maxPriceAge: defaultMaxPriceAge,
		now:         time.Now,
		log:         log.With().Str("service", "portfolio").Logger(),
	}
}

// BaseCurrency returns the currency holdings are valued in
func (s *Service) BaseCurrency() domain.Currency {
	return s.base
}

// Holdings projects every (ticker, broker) pair matching filter, largest
// market value first. A holding whose price or rate is unavailable is
// returned with Priced unset and zero market value.
func (s *Service) Holdings(ctx context.Context, filter HoldingFilter) ([]domain.Holding, error) {
	snapshots, err := s.snapshots.LatestPerGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}

	list, err := s.tickers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickers: %w", err)
	}
	byID := make(map[int64]domain.Ticker, len(list))
	for _, t := range list {
		byID[t.ID] = t
	}

	rates := currency.NewRateCache(s.rates, s.base)
	holdings := make([]domain.Holding, 0, len(snapshots))
	for _, snap := range snapshots {
		if filter.Broker != "" && snap.Broker != filter.Broker {
			continue
		}
		if snap.State.CumulativeUnits.IsZero() && !filter.IncludeClosed {
			continue
		}

		ticker, ok := byID[snap.TickerID]
		if !ok {
			return nil, fmt.Errorf("%w: transactions reference missing ticker %d", domain.ErrPersistence, snap.TickerID)
		}
		holdings = append(holdings, s.project(ctx, snap, ticker, rates))
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		if c := holdings[i].MarketValue.Cmp(holdings[j].MarketValue); c != 0 {
			return c > 0
		}
		if holdings[i].Symbol != holdings[j].Symbol {
			return holdings[i].Symbol < holdings[j].Symbol
		}
		return holdings[i].Broker < holdings[j].Broker
	})
	return holdings, nil
}

func (s *Service) project(ctx context.Context, snap ledger.GroupSnapshot, ticker domain.Ticker, rates *currency.RateCache) domain.Holding {
	units := snap.State.CumulativeUnits
	cost := snap.State.CumulativeCost

	h := domain.Holding{
		TickerID:           ticker.ID,
		Symbol:             ticker.Symbol,
		Name:               ticker.Name,
		Broker:             snap.Broker,
		Currency:           ticker.Currency,
		BaseCurrency:       s.base,
		AssetType:          ticker.AssetType,
		Quantity:           units,
		TotalCost:          cost.Round(2),
		CostPerShare:       decimal.Zero,
		Price:              decimal.Zero,
		ExchangeRate:       decimal.Zero,
		MarketValue:        decimal.Zero,
		UnrealizedGain:     decimal.Zero,
		RealizedGain:       snap.RealizedGains.Round(2),
		DividendsCollected: snap.DividendsCollected.Round(2),
		PriceUpdatedAt:     ticker.LastPriceUpdatedAt,
	}
	h.UnrealizedGainPercent = decimal.Zero
	h.TotalGain = h.RealizedGain
	if units.IsPositive() {
		h.CostPerShare = cost.Div(units).Round(4)
	}

	if !ticker.LastPrice.Valid {
		s.log.Debug().Str("symbol", ticker.Symbol).Msg("No price yet")
		return h
	}
	rate, err := rates.Rate(ctx, ticker.Currency)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", ticker.Symbol).Str("currency", string(ticker.Currency)).
			Msg("Holding left unpriced")
		return h
	}

	marketValue := units.Mul(ticker.LastPrice.Decimal).Mul(rate)
	unrealized := marketValue.Sub(cost)

	h.Priced = true
	h.Price = ticker.LastPrice.Decimal
	h.ExchangeRate = rate
	h.MarketValue = marketValue.Round(2)
	h.UnrealizedGain = unrealized.Round(2)
	if cost.IsPositive() {
		h.UnrealizedGainPercent = unrealized.Div(cost).Mul(hundred).Round(2)
	}
	h.TotalGain = snap.RealizedGains.Add(unrealized).Round(2)
	return h
}

// Summary totals the holdings matching filter and breaks market value down
// by asset type, broker and currency. Market value, cost and unrealized gain
// only cover priced holdings; the cost of the rest is in UnpricedCost.
func (s *Service) Summary(ctx context.Context, filter HoldingFilter) (*Summary, error) {
	holdings, err := s.Holdings(ctx, filter)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		BaseCurrency:    s.base,
		Holdings:        len(holdings),
		StaleSymbols:    []string{},
		UnpricedSymbols: []string{},
	}
	var (
		byType     = make(map[string]decimal.Decimal)
		byBroker   = make(map[string]decimal.Decimal)
		byCurrency = make(map[string]decimal.Decimal)
	)
	for _, h := range holdings {
		sum.RealizedGain = sum.RealizedGain.Add(h.RealizedGain)
		sum.DividendsCollected = sum.DividendsCollected.Add(h.DividendsCollected)

		if !h.Priced {
			sum.UnpricedCost = sum.UnpricedCost.Add(h.TotalCost)
			sum.UnpricedSymbols = append(sum.UnpricedSymbols, h.Symbol)
			continue
		}
		sum.TotalMarketValue = sum.TotalMarketValue.Add(h.MarketValue)
		sum.TotalCost = sum.TotalCost.Add(h.TotalCost)
		sum.UnrealizedGain = sum.UnrealizedGain.Add(h.UnrealizedGain)

		byType[string(h.AssetType)] = byType[string(h.AssetType)].Add(h.MarketValue)
		byBroker[h.Broker] = byBroker[h.Broker].Add(h.MarketValue)
		byCurrency[string(h.Currency)] = byCurrency[string(h.Currency)].Add(h.MarketValue)
	}
	sum.TotalGain = sum.RealizedGain.Add(sum.UnrealizedGain)
	if sum.TotalCost.IsPositive() {
		sum.UnrealizedGainPercent = sum.UnrealizedGain.Div(sum.TotalCost).Mul(hundred).Round(2)
	}
	sum.ByAssetType = allocations(byType, sum.TotalMarketValue)
	sum.ByBroker = allocations(byBroker, sum.TotalMarketValue)
	sum.ByCurrency = allocations(byCurrency, sum.TotalMarketValue)
	sum.StaleSymbols = s.checkPriceStaleness(holdings)

	return sum, nil
}

// checkPriceStaleness returns the symbols whose price is older than the
// allowed age. Missing prices are reported through UnpricedSymbols instead.
func (s *Service) checkPriceStaleness(holdings []domain.Holding) []string {
	now := s.now()
	stale := []string{}
	for _, h := range holdings {
		if h.PriceUpdatedAt == nil {
			continue
		}
		if age := now.Sub(*h.PriceUpdatedAt); age > s.maxPriceAge {
			stale = append(stale, h.Symbol)
		}
	}

	if len(stale) > 0 {
		s.log.Warn().
			Int("stale_count", len(stale)).
			Strs("stale_symbols", stale).
			Dur("max_age", s.maxPriceAge).
			Msg("Holdings contain stale prices - consider refreshing")
	}
	return stale
}

func allocations(values map[string]decimal.Decimal, total decimal.Decimal) []Allocation {
	out := make([]Allocation, 0, len(values))
	for name, v := range values {
		a := Allocation{Name: name, Value: v, Percent: decimal.Zero}
		if total.IsPositive() {
			a.Percent = v.Div(total).Mul(hundred).Round(2)
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
