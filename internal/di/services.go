package di

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/clients/alphavantage"
	"github.com/aristath/portfolio-tracker/internal/clients/exchangerate"
	"github.com/aristath/portfolio-tracker/internal/clients/fmp"
	"github.com/aristath/portfolio-tracker/internal/clients/frankfurter"
	"github.com/aristath/portfolio-tracker/internal/clients/marketstack"
	"github.com/aristath/portfolio-tracker/internal/clients/yahoo"
	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/modules/currency"
	"github.com/aristath/portfolio-tracker/internal/modules/ledger"
	"github.com/aristath/portfolio-tracker/internal/modules/portfolio"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
	"github.com/aristath/portfolio-tracker/internal/modules/tickers"
	"github.com/aristath/portfolio-tracker/internal/reliability"
	"github.com/rs/zerolog"
)

// ErrNoQuoteProviders is returned when no provider has a key and Yahoo is off
var ErrNoQuoteProviders = errors.New("no quote providers configured")

// InitializeRepositories creates all repositories
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return errors.New("container cannot be nil")
	}

	ledgerConn := container.LedgerDB.Conn()
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.TickerRepo = tickers.NewRepository(ledgerConn, log)
	container.TransactionRepo = ledger.NewTransactionRepository(ledgerConn, log)
	container.ImportRunRepo = ledger.NewImportRunRepository(ledgerConn, log)
	container.FXRateRepo = currency.NewFXRateRepository(log)

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates provider clients and every service on top of them
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return errors.New("container cannot be nil")
	}

	cache := container.ClientDataRepo
	keys := cfg.ProviderKeys()

	// Quote providers, in the fixed fallback order. Each is fronted by the
	// client_data response cache.
	var fmpClient *fmp.Client
	for _, p := range domain.ProviderPriority {
		var provider domain.QuoteProvider
		switch p {
		case domain.ProviderFMP:
			if keys[p] != "" {
				fmpClient = fmp.NewClient(keys[p], cfg.HTTPTimeout, log)
				provider = fmpClient
			}
		case domain.ProviderAlphaVantage:
			if keys[p] != "" {
				provider = alphavantage.NewClient(keys[p], log).WithTimeout(cfg.HTTPTimeout)
			}
		case domain.ProviderMarketstack:
			if keys[p] != "" {
				provider = marketstack.NewClient(keys[p], cfg.HTTPTimeout, log)
			}
		case domain.ProviderYahoo:
			if cfg.YahooEnabled {
				provider = yahoo.NewClient(log)
			}
		}
		if provider == nil {
			log.Debug().Str("provider", p.Code()).Msg("Quote provider disabled")
			continue
		}
		container.QuoteProviders = append(container.QuoteProviders, tickers.NewCachedProvider(provider, cache, log))
	}
	if len(container.QuoteProviders) == 0 {
		return ErrNoQuoteProviders
	}
	container.Resolver = tickers.NewResolver(container.QuoteProviders, log)

	// Exchange rates: ECB reference rates first, FMP history as fallback
	frankfurterClient := frankfurter.NewClient(cache, cfg.HTTPTimeout, log)
	historical := []currency.Source[domain.HistoricalRateProvider]{
		{Name: "frankfurter", Provider: frankfurterClient},
	}
	if fmpClient != nil {
		historical = append(historical, currency.Source[domain.HistoricalRateProvider]{Name: "fmp", Provider: fmpClient})
	}
	current := []currency.Source[domain.CurrentRateProvider]{
		{Name: "exchangerate", Provider: exchangerate.NewClient(cache, cfg.HTTPTimeout, log)},
		{Name: "frankfurter", Provider: frankfurterClient},
	}
	container.CurrencyService = currency.NewService(historical, current, log)

	container.Importer = ledger.NewImporter(
		container.LedgerDB.Conn(),
		container.TickerRepo,
		container.Resolver,
		container.CurrencyService,
		container.FXRateRepo,
		container.TransactionRepo,
		container.ImportRunRepo,
		cfg.BaseCurrency,
		cfg.MaxConcurrency,
		log,
	)

	container.Refresher = prices.NewRefresher(
		container.TickerRepo,
		container.Resolver,
		container.CurrencyService,
		cfg.BaseCurrency,
		cfg.MaxConcurrency,
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.TransactionRepo,
		container.TickerRepo,
		container.CurrencyService,
		cfg.BaseCurrency,
		log,
	)

	store, err := newBackupStore(cfg, log)
	if err != nil {
		return err
	}
	prefix := "portfolio"
	if cfg.Backup != nil && cfg.Backup.Prefix != "" {
		prefix = cfg.Backup.Prefix
	}
	// client_data.db is a cache and is left out of backups
	container.BackupService = reliability.NewBackupService(store, cfg.DataDir, prefix, log, container.LedgerDB)

	log.Info().
		Int("quote_providers", len(container.QuoteProviders)).
		Strs("historical_rates", container.CurrencyService.HistoricalSources()).
		Strs("current_rates", container.CurrencyService.CurrentSources()).
		Msg("Services initialized")
	return nil
}

// newBackupStore returns the configured bucket, or a local directory under
// the data dir when offsite backups are disabled
func newBackupStore(cfg *config.Config, log zerolog.Logger) (reliability.ObjectStore, error) {
	if cfg.Backup == nil || !cfg.Backup.Enabled {
		return reliability.NewDirStore(filepath.Join(cfg.DataDir, "backups")), nil
	}

	store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
		Bucket:          cfg.Backup.Bucket,
		Endpoint:        cfg.Backup.Endpoint,
		Region:          cfg.Backup.Region,
		AccessKeyID:     cfg.Backup.AccessKeyID,
		SecretAccessKey: cfg.Backup.SecretAccessKey,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup store: %w", err)
	}
	return store, nil
}
