package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/google/subcommands"
)

type importCmd struct {
	provider string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import one or more CSV ledgers" }
func (*importCmd) Usage() string {
	return `portfolio import [-provider <name>] <file.csv>...

  Imports every row above the stored transaction-number watermark. Rows
  already imported are skipped, so re-running an export is safe. A file
  either imports completely or not at all.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.provider, "provider", "", "Preferred quote provider for new symbols (defaults to DEFAULT_PROVIDER).")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "import: at least one CSV file is required")
		return subcommands.ExitUsageError
	}

	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	provider := a.cfg.DefaultProvider
	if c.provider != "" {
		if provider, err = domain.ParseProvider(c.provider); err != nil {
			return fail(err)
		}
	}

	for _, path := range f.Args() {
		summary, err := a.container.Importer.ImportFile(ctx, path, provider)
		if err != nil {
			printImportError(path, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s: %d read, %d imported, %d skipped, %d new tickers",
			path, summary.RowsRead, summary.RowsImported, summary.RowsSkipped, summary.NewTickers)
		if summary.OversoldRows > 0 {
			fmt.Printf(", %d oversold", summary.OversoldRows)
		}
		fmt.Println()
	}
	return subcommands.ExitSuccess
}

// printImportError lists every row failure on its own line
func printImportError(path string, err error) {
	var importErr *domain.ImportError
	if !errors.As(err, &importErr) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: import aborted, nothing was written\n", path)
	for _, e := range importErr.Errs {
		fmt.Fprintf(os.Stderr, "  %v\n", e)
	}
}

type resetCmd struct {
	assets bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete every imported transaction" }
func (*resetCmd) Usage() string {
	return `portfolio reset [-assets]

  Deletes all transactions so the next import starts from scratch. Stored
  exchange rates are kept. -assets also deletes resolved tickers.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.assets, "assets", false, "Also delete resolved tickers and their assets.")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	if err := a.container.Importer.Reset(ctx, c.assets); err != nil {
		return fail(err)
	}
	fmt.Println("ledger reset")
	return subcommands.ExitSuccess
}
