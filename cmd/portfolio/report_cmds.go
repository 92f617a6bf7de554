package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/portfolio"
	"github.com/google/subcommands"
)

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "fetch the latest price of every ticker" }
func (*refreshCmd) Usage() string {
	return `portfolio refresh

  Fetches a price for every stored ticker concurrently. A failing ticker
  does not stop the others; the command exits non-zero if any failed.
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	report, err := a.container.Refresher.RefreshAll(ctx)
	if report != nil {
		renderRefresh(os.Stdout, report)
	}
	if errors.Is(err, domain.ErrPartialRefresh) {
		return subcommands.ExitFailure
	}
	if err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type holdingsCmd struct {
	broker  string
	closed  bool
	summary bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "show current holdings in the base currency" }
func (*holdingsCmd) Usage() string {
	return `portfolio holdings [-broker <name>] [-closed] [-summary]

  Projects every (ticker, broker) position from the ledger, valued at the
  last refreshed price and today's exchange rate.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.broker, "broker", "", "Only show holdings at this broker.")
	f.BoolVar(&c.closed, "closed", false, "Include closed positions.")
	f.BoolVar(&c.summary, "summary", false, "Print portfolio totals instead of one line per holding.")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	filter := portfolio.HoldingFilter{Broker: c.broker, IncludeClosed: c.closed}
	service := a.container.PortfolioService

	if c.summary {
		summary, err := service.Summary(ctx, filter)
		if err != nil {
			return fail(err)
		}
		if err := renderSummary(os.Stdout, summary); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	holdings, err := service.Holdings(ctx, filter)
	if err != nil {
		return fail(err)
	}
	if err := renderHoldings(os.Stdout, holdings, service.BaseCurrency()); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type tickersCmd struct{}

func (*tickersCmd) Name() string     { return "tickers" }
func (*tickersCmd) Synopsis() string { return "list resolved tickers and their last prices" }
func (*tickersCmd) Usage() string {
	return `portfolio tickers
`
}

func (*tickersCmd) SetFlags(*flag.FlagSet) {}

func (*tickersCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	list, err := a.container.TickerRepo.List(ctx)
	if err != nil {
		return fail(err)
	}
	if err := renderTickers(os.Stdout, list); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
