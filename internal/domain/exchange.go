package domain

import "strings"

// Listing venues are written as a symbol suffix ("VWCE.DE", "SHEL.L").
// Symbols without a suffix are US listings.
var exchangeSuffixCurrency = map[string]Currency{
	"":    "USD",
	"L":   "GBP",
	"IL":  "USD",
	"DE":  "EUR",
	"F":   "EUR",
	"BE":  "EUR",
	"DU":  "EUR",
	"MU":  "EUR",
	"SG":  "EUR",
	"AS":  "EUR",
	"PA":  "EUR",
	"MI":  "EUR",
	"MC":  "EUR",
	"BR":  "EUR",
	"HE":  "EUR",
	"VI":  "EUR",
	"IR":  "EUR",
	"LS":  "EUR",
	"AT":  "EUR",
	"SW":  "CHF",
	"TO":  "CAD",
	"V":   "CAD",
	"AX":  "AUD",
	"NZ":  "NZD",
	"T":   "JPY",
	"HK":  "HKD",
	"SS":  "CNY",
	"SZ":  "CNY",
	"KS":  "KRW",
	"TW":  "TWD",
	"NS":  "INR",
	"BO":  "INR",
	"SI":  "SGD",
	"ST":  "SEK",
	"OL":  "NOK",
	"CO":  "DKK",
	"WA":  "PLN",
	"SA":  "BRL",
	"MX":  "MXN",
	"JO":  "ZAR",
	"IS":  "TRY",
	"TA":  "ILS",
	"CPH": "DKK",
	"US":  "USD",
}

// CurrencyForExchangeSuffix returns the trading currency of a venue suffix
func CurrencyForExchangeSuffix(suffix string) (Currency, bool) {
	c, ok := exchangeSuffixCurrency[strings.ToUpper(suffix)]
	return c, ok
}

// IsExchangeSuffix reports whether suffix names a known listing venue.
// Share-class suffixes such as the "B" in "BRK.B" are not venues.
func IsExchangeSuffix(suffix string) bool {
	if suffix == "" {
		return false
	}
	_, ok := exchangeSuffixCurrency[strings.ToUpper(suffix)]
	return ok
}
