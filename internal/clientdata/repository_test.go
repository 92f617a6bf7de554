package clientdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSchema creates all tables needed for testing
const testSchema = `
CREATE TABLE symbol_search (cache_key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE latest_quotes (cache_key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE fx_history (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE fx_latest (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

type cachedQuote struct {
	Price string `json:"price"`
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	err := repo.Store(ctx, TableLatestQuotes, "fmp:AAPL", cachedQuote{Price: "187.44"}, TTLLatestQuote)
	require.NoError(t, err)

	var got cachedQuote
	require.True(t, repo.Load(ctx, TableLatestQuotes, "fmp:AAPL", true, &got))
	assert.Equal(t, "187.44", got.Price)

	data, err := repo.GetIfFresh(ctx, TableLatestQuotes, "fmp:MSFT")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestExpiredDataOnlyAvailableStale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableFXLatest, "USD:EUR", map[string]string{"rate": "0.91"}, -time.Minute))

	fresh, err := repo.GetIfFresh(ctx, TableFXLatest, "USD:EUR")
	require.NoError(t, err)
	assert.Nil(t, fresh)

	stale, err := repo.Get(ctx, TableFXLatest, "USD:EUR")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":"0.91"}`, string(stale))
}

func TestStoreUpserts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableSymbolSearch, "fmp:SHEL:L", cachedQuote{Price: "1"}, time.Hour))
	require.NoError(t, repo.Store(ctx, TableSymbolSearch, "fmp:SHEL:L", cachedQuote{Price: "2"}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM symbol_search").Scan(&count))
	assert.Equal(t, 1, count)

	var got cachedQuote
	require.True(t, repo.Load(ctx, TableSymbolSearch, "fmp:SHEL:L", true, &got))
	assert.Equal(t, "2", got.Price)
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	assert.Error(t, repo.Store(ctx, "tickers; DROP TABLE x", "k", 1, time.Hour))
	_, err := repo.Get(ctx, "nope", "k")
	assert.Error(t, err)
	_, err = repo.DeleteExpired(ctx, "nope")
	assert.Error(t, err)
}

func TestLoadNilRepository(t *testing.T) {
	var repo *Repository
	var dest cachedQuote
	assert.False(t, repo.Load(context.Background(), TableLatestQuotes, "x", true, &dest))
}
