package tickers

import (
	"context"
	"database/sql"
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

func newTestRepository(t *testing.T) (*Repository, *database.DB) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop()), db
}

func vwceListing() domain.Listing {
	ticker := testingpkg.NewTickerFixtures()["VWCE"]
	ticker.Provider = domain.ProviderFMP
	return domain.Listing{
		Ticker: ticker,
		Asset:  domain.Asset{Name: ticker.Name, Type: domain.AssetTypeETF, ISIN: "IE00BK5BQT80"},
	}
}

func TestInsertOrIgnoreAndLookup(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	id, created, err := repo.InsertOrIgnore(ctx, db.Conn(), vwceListing(), "VWCE")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Positive(t, id)

	// Second insert is a no-op returning the same id
	id2, created, err := repo.InsertOrIgnore(ctx, db.Conn(), vwceListing())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	for _, alias := range []string{"VWCE", "vwce.de", " VWCE.DE "} {
		ticker, err := repo.Lookup(ctx, db.Conn(), alias)
		require.NoError(t, err)
		require.NotNil(t, ticker, alias)
		assert.Equal(t, id, ticker.ID)
		assert.Equal(t, "VWCE.DE", ticker.Symbol)
		assert.Equal(t, domain.CurrencyEUR, ticker.Currency)
		assert.Equal(t, domain.AssetTypeETF, ticker.AssetType)
		assert.Equal(t, domain.ProviderFMP, ticker.Provider)
		assert.False(t, ticker.LastPrice.Valid)
		assert.Nil(t, ticker.LastPriceUpdatedAt)
	}

	missing, err := repo.Lookup(ctx, db.Conn(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertOrIgnoreRejectsUnknownProvider(t *testing.T) {
	repo, db := newTestRepository(t)

	listing := vwceListing()
	listing.Ticker.Provider = domain.ProviderUnknown

	_, _, err := repo.InsertOrIgnore(context.Background(), db.Conn(), listing)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestInsertOrIgnoreConcurrent(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = database.WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
				id, _, err := repo.InsertOrIgnore(ctx, tx, vwceListing())
				ids[i] = id
				return err
			})
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdatePrice(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	id, _, err := repo.InsertOrIgnore(ctx, db.Conn(), vwceListing())
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 16, 30, 0, 0, time.UTC)
	require.NoError(t, repo.UpdatePrice(ctx, id, decimal.RequireFromString("118.42"), at))

	ticker, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, ticker)
	require.True(t, ticker.LastPrice.Valid)
	assert.True(t, decimal.RequireFromString("118.42").Equal(ticker.LastPrice.Decimal))
	require.NotNil(t, ticker.LastPriceUpdatedAt)
	assert.True(t, at.Equal(*ticker.LastPriceUpdatedAt))

	err = repo.UpdatePrice(ctx, 9999, decimal.NewFromInt(1), at)
	assert.ErrorIs(t, err, domain.ErrTickerNotFound)
}

func TestListListings(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, _, err := repo.InsertOrIgnore(ctx, db.Conn(), vwceListing())
	require.NoError(t, err)

	aapl := testingpkg.NewTickerFixtures()["AAPL"]
	aapl.Provider = domain.ProviderYahoo
	_, _, err = repo.InsertOrIgnore(ctx, db.Conn(), domain.Listing{Ticker: aapl})
	require.NoError(t, err)

	listings, err := repo.ListListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "AAPL", listings[0].Ticker.Symbol)
	assert.Equal(t, "Apple Inc.", listings[0].Asset.Name)
	assert.Equal(t, domain.AssetTypeStock, listings[0].Asset.Type)
	assert.Empty(t, listings[0].Asset.ISIN)

	assert.Equal(t, "VWCE.DE", listings[1].Ticker.Symbol)
	assert.Equal(t, "IE00BK5BQT80", listings[1].Asset.ISIN)
	assert.Equal(t, listings[1].Ticker.ID, listings[1].Asset.TickerID)
}

func TestTruncate(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, _, err := repo.InsertOrIgnore(ctx, db.Conn(), vwceListing(), "VWCE")
	require.NoError(t, err)

	require.NoError(t, repo.Truncate(ctx, db.Conn()))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	ticker, err := repo.Lookup(ctx, db.Conn(), "VWCE")
	require.NoError(t, err)
	assert.Nil(t, ticker)
}
