package di

import (
	"errors"
	"testing"
	"time"

	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:              t.TempDir(),
		BaseCurrency:         domain.CurrencyEUR,
		DefaultProvider:      domain.ProviderFMP,
		FMPAPIKey:            "test-key",
		YahooEnabled:         true,
		MaxConcurrency:       4,
		HTTPTimeout:          5 * time.Second,
		PriceRefreshSchedule: "0 0 */1 * * *",
		Backup:               &config.BackupConfig{Schedule: "0 30 3 * * *", Prefix: "portfolio"},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.Importer)
	assert.NotNil(t, container.Refresher)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.BackupService)

	assert.Equal(t, []domain.Provider{domain.ProviderFMP, domain.ProviderYahoo}, container.Resolver.Providers())
	assert.Equal(t, []string{"frankfurter", "fmp"}, container.CurrencyService.HistoricalSources())
	assert.Equal(t, []string{"exchangerate", "frankfurter"}, container.CurrencyService.CurrentSources())

	assert.NotNil(t, jobs.PriceRefresh)
	assert.NotNil(t, jobs.ClientDataCleanup)
	assert.NotNil(t, jobs.Maintenance)
	assert.Nil(t, jobs.Backup)

	s := scheduler.New(zerolog.Nop())
	require.NoError(t, ScheduleJobs(s, jobs, cfg))
	assert.ElementsMatch(t, []string{
		"price_refresh", "client_data_cleanup", "check_wal_checkpoints", "check_databases", "maintenance",
	}, s.Jobs())
}

func TestWire_NoProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.FMPAPIKey = ""
	cfg.YahooEnabled = false

	container, jobs, err := Wire(cfg, zerolog.Nop())
	assert.True(t, errors.Is(err, ErrNoQuoteProviders))
	assert.Nil(t, container)
	assert.Nil(t, jobs)
}

func TestScheduleJobs_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	cfg.PriceRefreshSchedule = "whenever"
	err = ScheduleJobs(scheduler.New(zerolog.Nop()), jobs, cfg)
	assert.ErrorContains(t, err, "price_refresh")
}
