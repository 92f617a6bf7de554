package clientdata

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertExpiredAndFresh(t *testing.T, db *sql.DB, table, keyCol string, expiredAt, freshAt int64) {
	t.Helper()
	query := fmt.Sprintf("INSERT INTO %s (%s, data, expires_at) VALUES (?, '{}', ?)", table, keyCol)
	_, err := db.Exec(query, "expired", expiredAt)
	require.NoError(t, err)
	_, err = db.Exec(query, "fresh", freshAt)
	require.NoError(t, err)
}

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Equal(t, "client_data_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())

	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	insertExpiredAndFresh(t, db, TableSymbolSearch, "cache_key", expiredAt, freshAt)
	insertExpiredAndFresh(t, db, TableLatestQuotes, "cache_key", expiredAt, freshAt)
	insertExpiredAndFresh(t, db, TableFXLatest, "pair", expiredAt, freshAt)

	require.NoError(t, job.Run())

	for _, table := range []string{TableSymbolSearch, TableLatestQuotes, TableFXLatest} {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Equal(t, 1, count, "table %s should only keep the fresh row", table)
	}
}
