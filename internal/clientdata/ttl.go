package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Symbol listings rarely change
	TTLSymbolSearch = 30 * 24 * time.Hour

	// A historical fixing never changes once published
	TTLFXHistory = 10 * 365 * 24 * time.Hour

	// Short-lived data
	TTLFXLatest    = time.Hour
	TTLLatestQuote = 10 * time.Minute
)
