package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, table string) bool {
	t.Helper()
	var n int
	err := db.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestMigrateLedger(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)

	require.NoError(t, db.Migrate())
	// Second run must be a no-op
	require.NoError(t, db.Migrate())

	for _, table := range []string{"tickers", "symbol_aliases", "assets", "transactions", "fx_rates", "import_runs"} {
		assert.True(t, tableExists(t, db, table), "missing table %s", table)
	}
}

func TestMigrateClientData(t *testing.T) {
	db := newTestDB(t, NameClientData, ProfileCache)
	require.NoError(t, db.Migrate())

	for _, table := range []string{"symbol_search", "latest_quotes", "fx_history", "fx_latest"} {
		assert.True(t, tableExists(t, db, table), "missing table %s", table)
	}
}

func TestMigrateUnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestConnectionString(t *testing.T) {
	ledger := connectionString("/tmp/l.db", profiles[ProfileLedger].pragmas)
	assert.Contains(t, ledger, "/tmp/l.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "busy_timeout(5000)")

	cache := connectionString("file:x?mode=memory", profiles[ProfileCache].pragmas)
	assert.Contains(t, cache, "file:x?mode=memory&_pragma=journal_mode(WAL)")
	assert.Contains(t, cache, "synchronous(OFF)")
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, "tx", ProfileStandard)
	_, err := db.Conn().Exec("CREATE TABLE items (name TEXT)")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (name) VALUES ('a')")
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES ('b')"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		err := WithTransaction(ctx, db.Conn(), func(tx *sql.Tx) error {
			_, _ = tx.Exec("INSERT INTO items (name) VALUES ('c')")
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in transaction")
	})

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)

	assert.Error(t, WithTransaction(ctx, nil, func(*sql.Tx) error { return nil }))
}

func TestSnapshotTo(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	target := filepath.Join(t.TempDir(), "snap", "ledger.db")
	require.NoError(t, db.SnapshotTo(context.Background(), target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newTestDB(t, NameLedger, ProfileLedger)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
}
