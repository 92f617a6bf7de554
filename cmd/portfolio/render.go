package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/portfolio"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// renderHoldings prints one line per holding with money in the base currency
func renderHoldings(w io.Writer, holdings []domain.Holding, base domain.Currency) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tBROKER\tQTY\tPRICE\tVALUE\tCOST\tUNREALIZED\t%\tREALIZED\tDIVIDENDS\t")
	for _, h := range holdings {
		price, value, unrealized, pct := "n/a", "n/a", "n/a", "n/a"
		if h.Priced {
			price = h.Price.StringFixed(2) + " " + string(h.Currency)
			value = base.FormatAmount(h.MarketValue)
			unrealized = base.FormatAmount(h.UnrealizedGain)
			pct = h.UnrealizedGainPercent.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			h.Symbol, h.Broker, h.Quantity.String(), price, value,
			base.FormatAmount(h.TotalCost), unrealized, pct,
			base.FormatAmount(h.RealizedGain), base.FormatAmount(h.DividendsCollected))
	}
	return tw.Flush()
}

func renderAllocations(w io.Writer, title string, allocations []portfolio.Allocation) {
	if len(allocations) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\n", title)
	for _, a := range allocations {
		fmt.Fprintf(w, "  %s\t%s%%\n", a.Name, a.Percent.StringFixed(2))
	}
}

// renderSummary prints portfolio totals and allocations
func renderSummary(w io.Writer, s *portfolio.Summary) error {
	base := s.BaseCurrency
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Holdings\t%d\n", s.Holdings)
	fmt.Fprintf(tw, "Market value\t%s\n", base.FormatAmount(s.TotalMarketValue))
	fmt.Fprintf(tw, "Cost\t%s\n", base.FormatAmount(s.TotalCost))
	fmt.Fprintf(tw, "Unrealized\t%s (%s%%)\n", base.FormatAmount(s.UnrealizedGain), s.UnrealizedGainPercent.StringFixed(2))
	fmt.Fprintf(tw, "Realized\t%s\n", base.FormatAmount(s.RealizedGain))
	fmt.Fprintf(tw, "Dividends\t%s\n", base.FormatAmount(s.DividendsCollected))
	fmt.Fprintf(tw, "Total gain\t%s\n", base.FormatAmount(s.TotalGain))
	renderAllocations(tw, "By asset type", s.ByAssetType)
	renderAllocations(tw, "By currency", s.ByCurrency)
	if len(s.UnpricedSymbols) > 0 {
		fmt.Fprintf(tw, "Unpriced\t%s (cost %s)\n", strings.Join(s.UnpricedSymbols, ", "), base.FormatAmount(s.UnpricedCost))
	}
	if len(s.StaleSymbols) > 0 {
		fmt.Fprintf(tw, "Stale prices\t%s\n", strings.Join(s.StaleSymbols, ", "))
	}
	return tw.Flush()
}

// renderTickers prints every stored ticker with its last price
func renderTickers(w io.Writer, list []domain.Ticker) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tNAME\tTYPE\tCCY\tPROVIDER\tLAST PRICE\tUPDATED")
	for _, t := range list {
		price, updated := "-", "-"
		if t.LastPrice.Valid {
			price = t.LastPrice.Decimal.String()
		}
		if t.LastPriceUpdatedAt != nil {
			updated = t.LastPriceUpdatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Symbol, t.Name, t.AssetType, t.Currency, t.Provider.Code(), price, updated)
	}
	return tw.Flush()
}

// renderRefresh prints the outcome of a refresh cycle
func renderRefresh(w io.Writer, report *prices.RefreshReport) {
	fmt.Fprintf(w, "updated %d ticker(s) in %s\n", len(report.Updated), report.Duration.Round(1e6))
	for _, f := range report.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.Symbol, f.Err)
	}
}
