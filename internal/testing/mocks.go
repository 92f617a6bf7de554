package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// MockQuoteProvider is an in-memory domain.QuoteProvider safe for concurrent use
type MockQuoteProvider struct {
	mu          sync.RWMutex
	provider    domain.Provider
	tickers     map[string]domain.Listing
	prices      map[string]decimal.Decimal
	errs        map[string]error
	searchCalls map[string]int
	priceCalls  map[string]int
}

// NewMockQuoteProvider creates a mock reporting itself as provider p
func NewMockQuoteProvider(p domain.Provider) *MockQuoteProvider {
	return &MockQuoteProvider{
		provider:    p,
		tickers:     make(map[string]domain.Listing),
		prices:      make(map[string]decimal.Decimal),
		errs:        make(map[string]error),
		searchCalls: make(map[string]int),
		priceCalls:  make(map[string]int),
	}
}

// AddTicker registers a searchable ticker under symbol
func (m *MockQuoteProvider) AddTicker(symbol string, t domain.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Provider = m.provider
	m.tickers[symbol] = domain.Listing{
		Ticker: t,
		Asset:  domain.Asset{Name: t.Name, Type: t.AssetType},
	}
}

// SetPrice registers the latest price for symbol
func (m *MockQuoteProvider) SetPrice(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// SetError makes every call for symbol fail with err
func (m *MockQuoteProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SearchCalls returns how many times Search was called for symbol
func (m *MockQuoteProvider) SearchCalls(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.searchCalls[symbol]
}

// PriceCalls returns how many times LatestPrice was called for symbol
func (m *MockQuoteProvider) PriceCalls(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.priceCalls[symbol]
}

// Provider implements domain.QuoteProvider
func (m *MockQuoteProvider) Provider() domain.Provider {
	return m.provider
}

// Search implements domain.QuoteProvider
func (m *MockQuoteProvider) Search(ctx context.Context, symbol, exchange string) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls[symbol]++

	if err := ctx.Err(); err != nil {
		return domain.Listing{}, err
	}
	if err, ok := m.errs[symbol]; ok {
		return domain.Listing{}, err
	}
	l, ok := m.tickers[symbol]
	if !ok {
		return domain.Listing{}, fmt.Errorf("%s: %w", symbol, domain.ErrTickerNotFound)
	}
	return l, nil
}

// LatestPrice implements domain.QuoteProvider
func (m *MockQuoteProvider) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceCalls[symbol]++

	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if err, ok := m.errs[symbol]; ok {
		return decimal.Zero, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s: %w", symbol, domain.ErrLookupFailure)
	}
	return p, nil
}

// MockRateProvider serves fixed exchange rates for both historical and
// current lookups. Unknown pairs fail with domain.ErrRateUnavailable.
type MockRateProvider struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	calls int
}

// NewMockRateProvider creates an empty rate provider
func NewMockRateProvider() *MockRateProvider {
	return &MockRateProvider{rates: make(map[string]decimal.Decimal)}
}

// SetRate registers the multiplier converting from into to
func (m *MockRateProvider) SetRate(from, to domain.Currency, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[string(from)+"/"+string(to)] = rate
}

// Calls returns the number of lookups served
func (m *MockRateProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockRateProvider) lookup(from, to domain.Currency) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	rate, ok := m.rates[string(from)+"/"+string(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s/%s: %w", from, to, domain.ErrRateUnavailable)
	}
	return rate, nil
}

// HistoricalRate implements domain.HistoricalRateProvider
func (m *MockRateProvider) HistoricalRate(_ context.Context, from, to domain.Currency, _ time.Time) (decimal.Decimal, error) {
	return m.lookup(from, to)
}

// CurrentRate implements domain.CurrentRateProvider
func (m *MockRateProvider) CurrentRate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	return m.lookup(from, to)
}
