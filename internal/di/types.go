// Package di provides dependency injection for the portfolio tracker.
package di

import (
	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/database"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/currency"
	"github.com/aristath/portfolio-tracker/internal/modules/ledger"
	"github.com/aristath/portfolio-tracker/internal/modules/portfolio"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
	"github.com/aristath/portfolio-tracker/internal/modules/tickers"
	"github.com/aristath/portfolio-tracker/internal/reliability"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
)

// Container holds all application dependencies.
//
// Two databases back the application:
//   - ledger.db holds tickers, assets, transactions, fx_rates and import runs
//   - client_data.db caches provider responses and is safe to delete
type Container struct {
	// Databases
	LedgerDB     *database.DB
	ClientDataDB *database.DB

	// Repositories
	ClientDataRepo  *clientdata.Repository
	TickerRepo      *tickers.Repository
	TransactionRepo *ledger.TransactionRepository
	ImportRunRepo   *ledger.ImportRunRepository
	FXRateRepo      *currency.FXRateRepository

	// Clients, in resolver fallback order after the preferred provider
	QuoteProviders []domain.QuoteProvider

	// Services
	Resolver         *tickers.Resolver
	CurrencyService  *currency.Service
	Importer         *ledger.Importer
	Refresher        *prices.Refresher
	PortfolioService *portfolio.Service
	BackupService    *reliability.BackupService
}

// Databases returns every open database, ledger first
func (c *Container) Databases() []*database.DB {
	var out []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.ClientDataDB} {
		if db != nil {
			out = append(out, db)
		}
	}
	return out
}

// Close closes every database. Safe to call on a partly built container.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// JobInstances holds the scheduler jobs for manual triggering
type JobInstances struct {
	PriceRefresh      scheduler.Job
	ClientDataCleanup scheduler.Job
	WALCheckpoints    scheduler.Job
	DatabaseCheck     scheduler.Job
	Maintenance       scheduler.Job
	Backup            scheduler.Job // nil when backups are disabled
}

// All returns every non-nil job
func (j *JobInstances) All() []scheduler.Job {
	var out []scheduler.Job
	for _, job := range []scheduler.Job{
		j.PriceRefresh, j.ClientDataCleanup, j.WALCheckpoints, j.DatabaseCheck, j.Maintenance, j.Backup,
	} {
		if job != nil {
			out = append(out, job)
		}
	}
	return out
}
