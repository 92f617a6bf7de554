package currency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// FXRateRepository stores the rates applied to each transaction at first
// import. The table is not cleared by a transactions reset, so re-importing
// the same ledger reuses the original rates.
type FXRateRepository struct {
	log zerolog.Logger
}

// NewFXRateRepository creates a new fx_rates repository
func NewFXRateRepository(log zerolog.Logger) *FXRateRepository {
	return &FXRateRepository{
		log: log.With().Str("repo", "fx_rates").Logger(),
	}
}

// Get returns the stored rate for (transactionNo, from, to). ok is false
// when no rate was stored.
func (r *FXRateRepository) Get(ctx context.Context, q Querier, transactionNo int64, from, to domain.Currency) (rate decimal.Decimal, ok bool, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT rate FROM fx_rates
		WHERE transaction_no = ? AND from_currency = ? AND to_currency = ?
	`, transactionNo, string(from), string(to)).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: failed to read fx rate for transaction %d: %v", domain.ErrPersistence, transactionNo, err)
	}
	return rate, true, nil
}

// Put records the rate applied to a transaction. An existing rate is kept.
func (r *FXRateRepository) Put(ctx context.Context, q Querier, transactionNo int64, from, to domain.Currency, rate decimal.Decimal, date time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO fx_rates (transaction_no, from_currency, to_currency, rate, rate_date)
		VALUES (?, ?, ?, ?, ?)
	`, transactionNo, string(from), string(to), rate.String(), date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("%w: failed to store fx rate for transaction %d: %v", domain.ErrPersistence, transactionNo, err)
	}
	return nil
}

// Resolve returns the stored rate for the transaction or fetches it through
// fetch and stores it. Identity pairs are neither fetched nor stored.
func (r *FXRateRepository) Resolve(
	ctx context.Context,
	q Querier,
	transactionNo int64,
	from, to domain.Currency,
	date time.Time,
	fetch domain.HistoricalRateProvider,
) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	rate, ok, err := r.Get(ctx, q, transactionNo, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		r.log.Debug().Int64("transaction_no", transactionNo).Str("pair", pair(from, to)).Msg("Reusing stored rate")
		return rate, nil
	}

	rate, err = fetch.HistoricalRate(ctx, from, to, date)
	if err != nil {
		return decimal.Zero, err
	}
	if err := r.Put(ctx, q, transactionNo, from, to, rate, date); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
