package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aristath/portfolio-tracker/internal/database"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/currency"
	"github.com/aristath/portfolio-tracker/internal/modules/tickers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// SymbolResolver finds a provider listing for a CSV symbol
type SymbolResolver interface {
	Resolve(ctx context.Context, symbol string, preferred domain.Provider) (domain.Listing, error)
}

// Importer turns a CSV ledger into persisted transactions with cached FIFO
// state. Rows are applied inside a single database transaction: an import
// either commits every new row or none.
type Importer struct {
	db           *sql.DB
	tickerRepo   *tickers.Repository
	resolver     SymbolResolver
	rates        domain.HistoricalRateProvider
	fxRates      *currency.FXRateRepository
	transactions *TransactionRepository
	runs         *ImportRunRepository
	base         domain.Currency
	concurrency  int
	log          zerolog.Logger
}

// NewImporter creates an importer converting amounts into base.
// concurrency bounds parallel symbol resolution; values below 1 mean one.
func NewImporter(
	db *sql.DB,
	tickerRepo *tickers.Repository,
	resolver SymbolResolver,
	rates domain.HistoricalRateProvider,
	fxRates *currency.FXRateRepository,
	transactions *TransactionRepository,
	runs *ImportRunRepository,
	base domain.Currency,
	concurrency int,
	log zerolog.Logger,
) *Importer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Importer{
		db:           db,
		tickerRepo:   tickerRepo,
		resolver:     resolver,
		rates:        rates,
		fxRates:      fxRates,
		transactions: transactions,
		runs:         runs,
		base:         base,
		concurrency:  concurrency,
		log:          log.With().Str("service", "importer").Logger(),
	}
}

// ImportFile imports the CSV ledger at path
func (im *Importer) ImportFile(ctx context.Context, path string, provider domain.Provider) (*ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return im.Import(ctx, f, path, provider)
}

// Import reads a CSV ledger from r. Symbols unknown to the database are
// resolved first, preferring provider; rows at or below the watermark are
// skipped. Every failure is reported through a *domain.ImportError.
func (im *Importer) Import(ctx context.Context, r io.Reader, source string, provider domain.Provider) (*ImportSummary, error) {
	summary := &ImportSummary{
		StartedAt:       time.Now().UTC(),
		RunID:           uuid.New().String(),
		Source:          source,
		DefaultProvider: provider,
	}
	log := im.log.With().Str("run_id", summary.RunID).Str("source", source).Logger()

	records, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	summary.RowsRead = len(records)

	known, created, err := im.resolveSymbols(ctx, records, provider)
	if err != nil {
		return nil, err
	}
	summary.NewTickers = created

	var rowErr error
	err = database.WithTransaction(ctx, im.db, func(tx *sql.Tx) error {
		watermark, err := im.transactions.MaxTransactionNo(ctx, tx)
		if err != nil {
			return err
		}
		summary.Watermark = watermark

		groups := make(map[groupKey]*GroupHistory)
		for _, rec := range records {
			if rec.TransactionNo <= watermark {
				summary.RowsSkipped++
				continue
			}

			t, oversold, err := im.apply(ctx, tx, rec, known[rec.Symbol], groups, log)
			if err != nil {
				rowErr = &domain.RowError{Row: rec.Row, TransactionNo: rec.TransactionNo, Err: err}
				return rowErr
			}
			t.ImportRunID = summary.RunID

			inserted, err := im.transactions.Insert(ctx, tx, t)
			if err != nil {
				rowErr = &domain.RowError{Row: rec.Row, TransactionNo: rec.TransactionNo, Err: err}
				return rowErr
			}
			if !inserted {
				summary.RowsSkipped++
				continue
			}
			if oversold {
				summary.OversoldRows++
			}
			summary.RowsImported++
		}
		return nil
	})
	if err != nil {
		if rowErr != nil {
			err = rowErr
		} else if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		log.Error().Err(err).Msg("Import rolled back")
		return nil, &domain.ImportError{Errs: []error{err}}
	}

	summary.FinishedAt = time.Now().UTC()
	if err := im.runs.Insert(ctx, *summary); err != nil {
		log.Warn().Err(err).Msg("Failed to record import run")
	}

	log.Info().
		Int("rows_read", summary.RowsRead).
		Int("rows_imported", summary.RowsImported).
		Int("rows_skipped", summary.RowsSkipped).
		Int("new_tickers", summary.NewTickers).
		Int("oversold_rows", summary.OversoldRows).
		Dur("duration", summary.Duration()).
		Msg("Import completed")

	return summary, nil
}

// apply prices one row and replays its group to produce the transaction to
// persist. groups caches replay input per (ticker, broker) for the run.
func (im *Importer) apply(
	ctx context.Context,
	tx *sql.Tx,
	rec Record,
	ticker domain.Ticker,
	groups map[groupKey]*GroupHistory,
	log zerolog.Logger,
) (*domain.Transaction, bool, error) {
	price, fees := rec.Price, rec.Fees
	if rec.Currency != "" && rec.Currency != ticker.Currency {
		conv, err := im.fxRates.Resolve(ctx, tx, rec.TransactionNo, rec.Currency, ticker.Currency, rec.Date, im.rates)
		if err != nil {
			return nil, false, err
		}
		price = price.Mul(conv)
		fees = fees.Mul(conv)
	}

	rate, err := im.fxRates.Resolve(ctx, tx, rec.TransactionNo, ticker.Currency, im.base, rec.Date, im.rates)
	if err != nil {
		return nil, false, err
	}

	t := &domain.Transaction{
		TransactionNo: rec.TransactionNo,
		Date:          rec.Date,
		Type:          rec.Type,
		TickerID:      ticker.ID,
		Symbol:        ticker.Symbol,
		Broker:        rec.Broker,
		Currency:      ticker.Currency,
		ExchangeRate:  rate,
		Quantity:      rec.Quantity,
		Price:         price,
		Fees:          fees,
		Amount:        ComputeAmount(rec.Type, rec.Quantity, price, fees, rate),
	}

	key := groupKey{ticker.ID, rec.Broker}
	group, ok := groups[key]
	if !ok {
		group, err = im.transactions.History(ctx, tx, ticker.ID, rec.Broker)
		if err != nil {
			return nil, false, err
		}
		groups[key] = group
	}

	oversold := false
	if t.Type == domain.TransactionTypeDividend {
		t.State = group.State
		t.State.CostOfUnitsSold = decimal.Zero
	} else {
		group.Append(t.Amount, t.SignedQuantity())
		res, err := Replay(group.Amounts, group.Quantities)
		if err != nil {
			return nil, false, err
		}
		if res.Oversold() {
			oversold = true
			log.Warn().
				Int64("transaction_no", rec.TransactionNo).
				Str("symbol", ticker.Symbol).
				Str("broker", rec.Broker).
				Int64("unmatched_units", res.UnmatchedUnits).
				Msg("Sell exceeds held units, clamped to zero")
		}
		t.State = res.State
	}
	group.State = t.State
	t.Gains = DeriveGains(t.Type, t.Amount, t.State)

	return t, oversold, nil
}

type resolution struct {
	err     error
	ticker  domain.Ticker
	created bool
}

// resolveSymbols maps every CSV symbol onto a stored ticker. Unknown symbols
// are resolved concurrently; each success is persisted in its own short
// transaction. Any failure aborts the import with every failing symbol.
func (im *Importer) resolveSymbols(ctx context.Context, records []Record, provider domain.Provider) (map[string]domain.Ticker, int, error) {
	var (
		known   = make(map[string]domain.Ticker)
		seen    = make(map[string]bool)
		pending []Record
	)

	for _, rec := range records {
		if seen[rec.Symbol] {
			continue
		}
		seen[rec.Symbol] = true

		var found *domain.Ticker
		for _, alias := range rec.Aliases() {
			t, err := im.tickerRepo.Lookup(ctx, im.db, alias)
			if err != nil {
				return nil, 0, &domain.ImportError{Errs: []error{fmt.Errorf("%w: %w", domain.ErrPersistence, err)}}
			}
			if t != nil {
				found = t
				break
			}
		}
		if found != nil {
			known[rec.Symbol] = *found
			continue
		}
		pending = append(pending, rec)
	}

	if len(pending) == 0 {
		return known, 0, nil
	}

	results := make([]resolution, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)
	for i, rec := range pending {
		i, rec := i, rec
		g.Go(func() error {
			results[i] = im.resolveOne(gctx, rec, provider)
			return nil
		})
	}
	_ = g.Wait()

	var (
		errs    []error
		created int
	)
	for i, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		known[pending[i].Symbol] = res.ticker
		if res.created {
			created++
		}
	}
	if len(errs) > 0 {
		return nil, 0, &domain.ImportError{Errs: errs}
	}

	im.log.Info().Int("resolved", len(pending)).Int("new_tickers", created).Msg("Symbols resolved")
	return known, created, nil
}

func (im *Importer) resolveOne(ctx context.Context, rec Record, provider domain.Provider) resolution {
	listing, err := im.resolver.Resolve(ctx, rec.SearchSymbol(), provider)
	if err != nil {
		var symErr *domain.SymbolError
		if errors.As(err, &symErr) && symErr.Symbol == rec.Symbol {
			return resolution{err: err}
		}
		return resolution{err: &domain.SymbolError{Symbol: rec.Symbol, Err: err}}
	}

	var (
		id      int64
		created bool
	)
	err = database.WithTransaction(ctx, im.db, func(tx *sql.Tx) error {
		var err error
		id, created, err = im.tickerRepo.InsertOrIgnore(ctx, tx, listing, rec.Aliases()...)
		return err
	})
	if err != nil {
		return resolution{err: &domain.SymbolError{Symbol: rec.Symbol, Err: err}}
	}

	t := listing.Ticker
	t.ID = id
	if !created {
		// Another spelling already stored this listing; use the stored row
		stored, err := im.tickerRepo.Lookup(ctx, im.db, t.Symbol)
		if err == nil && stored != nil {
			t = *stored
		}
	}
	return resolution{ticker: t, created: created}
}

// Reset deletes every transaction, and every ticker when clearTickers is
// set, in one database transaction. Stored fx rates survive so a re-import
// applies the rates fixed at first import.
func (im *Importer) Reset(ctx context.Context, clearTickers bool) error {
	err := database.WithTransaction(ctx, im.db, func(tx *sql.Tx) error {
		if err := im.transactions.Truncate(ctx, tx); err != nil {
			return err
		}
		if clearTickers {
			return im.tickerRepo.Truncate(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	im.log.Info().Bool("tickers", clearTickers).Msg("Ledger reset")
	return nil
}
