package currency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aristath/portfolio-tracker/internal/database"
	"github.com/aristath/portfolio-tracker/internal/domain"
	testingpkg "github.com/aristath/portfolio-tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newService(primary, secondary *testingpkg.MockRateProvider) *Service {
	return NewService(
		[]Source[domain.HistoricalRateProvider]{{Name: "primary", Provider: primary}, {Name: "secondary", Provider: secondary}},
		[]Source[domain.CurrentRateProvider]{{Name: "primary", Provider: primary}, {Name: "secondary", Provider: secondary}},
		zerolog.Nop(),
	)
}

func TestIdentityNeverCallsProviders(t *testing.T) {
	primary := testingpkg.NewMockRateProvider()
	svc := newService(primary, testingpkg.NewMockRateProvider())

	for _, c := range []domain.Currency{domain.CurrencyEUR, domain.CurrencyUSD, "JPY"} {
		rate, err := svc.HistoricalRate(context.Background(), c, c, testDate)
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(1)))

		rate, err = svc.CurrentRate(context.Background(), c, c)
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	}
	assert.Zero(t, primary.Calls())
}

func TestHistoricalRateFallback(t *testing.T) {
	primary := testingpkg.NewMockRateProvider()
	secondary := testingpkg.NewMockRateProvider()
	secondary.SetRate(domain.CurrencyUSD, domain.CurrencyEUR, decimal.RequireFromString("0.9241"))
	svc := newService(primary, secondary)

	rate, err := svc.HistoricalRate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR, testDate)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.9241").Equal(rate))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestRateUnavailable(t *testing.T) {
	svc := newService(testingpkg.NewMockRateProvider(), testingpkg.NewMockRateProvider())

	_, err := svc.HistoricalRate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR, testDate)
	require.ErrorIs(t, err, domain.ErrRateUnavailable)
	assert.Contains(t, err.Error(), "2024-03-01")
	assert.Contains(t, err.Error(), "secondary")

	_, err = svc.CurrentRate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR)
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestSources(t *testing.T) {
	svc := newService(testingpkg.NewMockRateProvider(), testingpkg.NewMockRateProvider())
	assert.Equal(t, []string{"primary", "secondary"}, svc.HistoricalSources())
	assert.Equal(t, []string{"primary", "secondary"}, svc.CurrentSources())
}

func TestRateCache(t *testing.T) {
	source := testingpkg.NewMockRateProvider()
	source.SetRate(domain.CurrencyUSD, domain.CurrencyEUR, decimal.RequireFromString("0.92"))
	source.SetRate(domain.CurrencyGBP, domain.CurrencyEUR, decimal.RequireFromString("1.17"))

	cache := NewRateCache(source, domain.CurrencyEUR)
	ctx := context.Background()

	rate, err := cache.Rate(ctx, domain.CurrencyEUR)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, source.Calls())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Rate(ctx, domain.CurrencyUSD)
		}()
	}
	wg.Wait()

	rate, err = cache.Rate(ctx, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.92").Equal(rate))
	assert.Equal(t, domain.CurrencyEUR, cache.Base())
}

func TestRateCacheWarm(t *testing.T) {
	source := testingpkg.NewMockRateProvider()
	source.SetRate(domain.CurrencyUSD, domain.CurrencyEUR, decimal.RequireFromString("0.92"))

	cache := NewRateCache(source, domain.CurrencyEUR)
	failed := cache.Warm(context.Background(),
		[]domain.Currency{domain.CurrencyUSD, domain.CurrencyUSD, "JPY", domain.CurrencyEUR}, 2)

	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed["JPY"], domain.ErrRateUnavailable)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 2, source.Calls())
}

func TestFXRateRepositoryResolve(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	defer cleanup()

	repo := NewFXRateRepository(zerolog.Nop())
	source := testingpkg.NewMockRateProvider()
	source.SetRate(domain.CurrencyUSD, domain.CurrencyEUR, decimal.RequireFromString("0.9241"))
	ctx := context.Background()

	rate, err := repo.Resolve(ctx, db.Conn(), 7, domain.CurrencyUSD, domain.CurrencyEUR, testDate, source)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.9241").Equal(rate))

	// The stored rate wins even when the provider now answers differently
	source.SetRate(domain.CurrencyUSD, domain.CurrencyEUR, decimal.RequireFromString("0.5"))
	rate, err = repo.Resolve(ctx, db.Conn(), 7, domain.CurrencyUSD, domain.CurrencyEUR, testDate, source)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.9241").Equal(rate))
	assert.Equal(t, 1, source.Calls())

	rate, err = repo.Resolve(ctx, db.Conn(), 7, domain.CurrencyEUR, domain.CurrencyEUR, testDate, source)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, source.Calls())

	_, ok, err := repo.Get(ctx, db.Conn(), 8, domain.CurrencyUSD, domain.CurrencyEUR)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFXRateRepositoryResolveFailure(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	defer cleanup()

	repo := NewFXRateRepository(zerolog.Nop())

	_, err := repo.Resolve(context.Background(), db.Conn(), 1, domain.CurrencyUSD, domain.CurrencyEUR,
		testDate, testingpkg.NewMockRateProvider())
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)

	_, ok, err := repo.Get(context.Background(), db.Conn(), 1, domain.CurrencyUSD, domain.CurrencyEUR)
	require.NoError(t, err)
	assert.False(t, ok)
}
