// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency represents an ISO 4217 currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// NormalizeCurrency upper-cases and validates a currency code against the ISO table
func NormalizeCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("%w: empty currency code", ErrParse)
	}
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: unknown currency code %q", ErrParse, code)
	}
	return Currency(code), nil
}

// FormatAmount renders an amount with the currency's symbol and minor-unit precision
func (c Currency) FormatAmount(amount decimal.Decimal) string {
	cur := money.GetCurrency(string(c))
	if cur == nil {
		return amount.StringFixed(2) + " " + string(c)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// TransactionType is the kind of ledger entry
type TransactionType string

const (
	TransactionTypeBuy      TransactionType = "Buy"
	TransactionTypeSell     TransactionType = "Sell"
	TransactionTypeDividend TransactionType = "Div"
)

// ParseTransactionType parses the CSV/database spelling of a transaction type
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.TrimSpace(s) {
	case "Buy":
		return TransactionTypeBuy, nil
	case "Sell":
		return TransactionTypeSell, nil
	case "Div", "Dividend":
		return TransactionTypeDividend, nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", ErrParse, s)
}

// AssetType classifies the instrument behind a ticker
type AssetType string

const (
	AssetTypeStock          AssetType = "Stock"
	AssetTypeBond           AssetType = "Bond"
	AssetTypeETF            AssetType = "ETF"
	AssetTypeMutualFund     AssetType = "MutualFund"
	AssetTypeCrypto         AssetType = "Crypto"
	AssetTypePreciousMetals AssetType = "PreciousMetals"
	AssetTypeOther          AssetType = "Other"
)

// ParseAssetType parses a persisted asset type
func ParseAssetType(s string) (AssetType, error) {
	switch t := AssetType(s); t {
	case AssetTypeStock, AssetTypeBond, AssetTypeETF, AssetTypeMutualFund,
		AssetTypeCrypto, AssetTypePreciousMetals, AssetTypeOther:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown asset type %q", ErrParse, s)
}

// AssetTypeFromQuoteType maps provider instrument labels (Yahoo quoteType,
// Alpha Vantage "3. type", FMP exchange listings) onto AssetType.
func AssetTypeFromQuoteType(q string) AssetType {
	switch strings.ToUpper(strings.TrimSpace(q)) {
	case "EQUITY", "STOCK", "COMMON STOCK":
		return AssetTypeStock
	case "ETF":
		return AssetTypeETF
	case "MUTUALFUND", "MUTUAL FUND":
		return AssetTypeMutualFund
	case "CRYPTOCURRENCY", "CRYPTO":
		return AssetTypeCrypto
	case "BOND":
		return AssetTypeBond
	case "":
		return AssetTypeStock
	}
	return AssetTypeOther
}

// Ticker is a provider-resolved instrument listing
type Ticker struct {
	LastPriceUpdatedAt *time.Time          `json:"last_price_updated_at,omitempty"`
	LastPrice          decimal.NullDecimal `json:"last_price"`
	Symbol             string              `json:"symbol"`
	Name               string              `json:"name"`
	Currency           Currency            `json:"currency"`
	Exchange           string              `json:"exchange"`
	AssetType          AssetType           `json:"asset_type"`
	ID                 int64               `json:"id"`
	Provider           Provider            `json:"provider"`
}

// WithPrice returns a copy of the ticker carrying a fresh price observation
func (t Ticker) WithPrice(price decimal.Decimal, at time.Time) Ticker {
	t.LastPrice = decimal.NewNullDecimal(price)
	t.LastPriceUpdatedAt = &at
	return t
}

// Asset is the logical instrument metadata attached to a ticker
type Asset struct {
	Name     string    `json:"name"`
	Type     AssetType `json:"type"`
	ISIN     string    `json:"isin,omitempty"`
	Sector   string    `json:"sector,omitempty"`
	Industry string    `json:"industry,omitempty"`
	ID       int64     `json:"id"`
	TickerID int64     `json:"ticker_id"`
}

// Listing is a provider search result: the tradable ticker plus whatever
// asset metadata the provider exposes
type Listing struct {
	Ticker Ticker
	Asset  Asset
}

// PositionState is the FIFO ledger snapshot after a transaction
type PositionState struct {
	CumulativeUnits decimal.Decimal `json:"cumulative_units"`
	CumulativeCost  decimal.Decimal `json:"cumulative_cost"`
	CostOfUnitsSold decimal.Decimal `json:"cost_of_units_sold"`
}

// TransactionGains holds gains realized by a single transaction
type TransactionGains struct {
	RealizedGains      decimal.Decimal `json:"realized_gains"`
	DividendsCollected decimal.Decimal `json:"dividends_collected"`
}

// Transaction is an imported ledger row with its cached derived state
type Transaction struct {
	Date          time.Time        `json:"date"`
	Type          TransactionType  `json:"type"`
	Symbol        string           `json:"symbol"`
	Broker        string           `json:"broker"`
	Currency      Currency         `json:"currency"`
	ImportRunID   string           `json:"import_run_id,omitempty"`
	ExchangeRate  decimal.Decimal  `json:"exchange_rate"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
	Fees          decimal.Decimal  `json:"fees"`
	Amount        decimal.Decimal  `json:"amount"`
	State         PositionState    `json:"state"`
	Gains         TransactionGains `json:"gains"`
	ID            int64            `json:"id"`
	TransactionNo int64            `json:"transaction_no"`
	TickerID      int64            `json:"ticker_id"`
}

// SignedQuantity returns units acquired (positive) or disposed (negative)
func (t Transaction) SignedQuantity() decimal.Decimal {
	if t.Type == TransactionTypeBuy {
		return t.Quantity.Abs()
	}
	return t.Quantity.Abs().Neg()
}

// Holding is a point-in-time projection for one (ticker, broker) pair.
// Money fields are expressed in the portfolio base currency.
type Holding struct {
	PriceUpdatedAt        *time.Time      `json:"price_updated_at,omitempty"`
	Symbol                string          `json:"symbol"`
	Name                  string          `json:"name"`
	Broker                string          `json:"broker"`
	Currency              Currency        `json:"currency"`
	BaseCurrency          Currency        `json:"base_currency"`
	AssetType             AssetType       `json:"asset_type"`
	Quantity              decimal.Decimal `json:"quantity"`
	Price                 decimal.Decimal `json:"price"`
	ExchangeRate          decimal.Decimal `json:"exchange_rate"`
	MarketValue           decimal.Decimal `json:"market_value"`
	CostPerShare          decimal.Decimal `json:"cost_per_share"`
	TotalCost             decimal.Decimal `json:"total_cost"`
	UnrealizedGain        decimal.Decimal `json:"unrealized_gain"`
	UnrealizedGainPercent decimal.Decimal `json:"unrealized_gain_percent"`
	RealizedGain          decimal.Decimal `json:"realized_gain"`
	DividendsCollected    decimal.Decimal `json:"dividends_collected"`
	TotalGain             decimal.Decimal `json:"total_gain"`
	TickerID              int64           `json:"ticker_id"`
	Priced                bool            `json:"priced"`
}
