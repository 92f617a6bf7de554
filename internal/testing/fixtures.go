package testing

import (
	"github.com/aristath/portfolio-tracker/internal/domain"
)

// NewTickerFixtures returns provider search results for common symbols
func NewTickerFixtures() map[string]domain.Ticker {
	return map[string]domain.Ticker{
		"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Currency: domain.CurrencyUSD, Exchange: "NASDAQ", AssetType: domain.AssetTypeStock},
		"MSFT": {Symbol: "MSFT", Name: "Microsoft Corporation", Currency: domain.CurrencyUSD, Exchange: "NASDAQ", AssetType: domain.AssetTypeStock},
		"VWCE": {Symbol: "VWCE.DE", Name: "Vanguard FTSE All-World UCITS ETF", Currency: domain.CurrencyEUR, Exchange: "XETRA", AssetType: domain.AssetTypeETF},
		"SHEL": {Symbol: "SHEL.L", Name: "Shell plc", Currency: domain.CurrencyGBP, Exchange: "LSE", AssetType: domain.AssetTypeStock},
	}
}

// SampleLedgerCSV mirrors the lot history used throughout the FIFO tests:
// five buys of 20 units followed by a sale of 20, all in EUR.
const SampleLedgerCSV = `transaction_no,date,type,symbol,quantity,price,fees,broker,alt_symbol,currency
1,2023-01-10,Buy,VWCE,20,88.351,10,Degiro,,
2,2023-02-10,Buy,VWCE,20,82.454,10,Degiro,,
3,2023-03-10,Buy,VWCE,20,109.003,10,Degiro,,
4,2023-04-10,Buy,VWCE,20,87.9105,10,Degiro,,
5,2023-05-10,Buy,VWCE,20,80.104,10,Degiro,,
6,2023-06-10,Sell,VWCE,20,114.282,10,Degiro,,
`
