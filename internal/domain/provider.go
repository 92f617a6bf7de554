package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifies a quote data source.
// The persisted form is the v1 code ("fmp", "alphavantage", ...); display
// names written by older databases are still accepted when reading.
type Provider uint8

const (
	ProviderUnknown Provider = iota
	ProviderFMP
	ProviderAlphaVantage
	ProviderMarketstack
	ProviderYahoo
)

// ProviderPriority is the fixed fallback order used after the preferred provider
var ProviderPriority = []Provider{
	ProviderFMP,
	ProviderAlphaVantage,
	ProviderMarketstack,
	ProviderYahoo,
}

var providerCodes = map[Provider]string{
	ProviderFMP:          "fmp",
	ProviderAlphaVantage: "alphavantage",
	ProviderMarketstack:  "marketstack",
	ProviderYahoo:        "yahoo",
}

var providerNames = map[Provider]string{
	ProviderFMP:          "Financial Modeling Prep",
	ProviderAlphaVantage: "Alpha Vantage",
	ProviderMarketstack:  "Marketstack",
	ProviderYahoo:        "Yahoo Finance",
}

// ParseProvider accepts a v1 code or a legacy display name
func ParseProvider(s string) (Provider, error) {
	trimmed := strings.TrimSpace(s)
	for p, code := range providerCodes {
		if strings.EqualFold(trimmed, code) {
			return p, nil
		}
	}
	for p, name := range providerNames {
		if strings.EqualFold(trimmed, name) {
			return p, nil
		}
	}
	return ProviderUnknown, fmt.Errorf("unknown provider %q", s)
}

// Code returns the persisted identifier
func (p Provider) Code() string {
	if code, ok := providerCodes[p]; ok {
		return code
	}
	return "unknown"
}

// String returns the human readable provider name
func (p Provider) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether p is a known provider
func (p Provider) Valid() bool {
	_, ok := providerCodes[p]
	return ok
}

// Value implements driver.Valuer
func (p Provider) Value() (driver.Value, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: cannot persist provider %d", ErrPersistence, p)
	}
	return p.Code(), nil
}

// Scan implements sql.Scanner and rejects unknown provider strings
func (p *Provider) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("%w: unsupported provider column type %T", ErrPersistence, src)
	}
	parsed, err := ParseProvider(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	*p = parsed
	return nil
}

// MarshalJSON encodes the provider as its v1 code
func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Code())
}

// UnmarshalJSON decodes a v1 code or a display name
func (p *Provider) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProvider(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
