// Package clientdata provides persistent caching for external API client responses.
// All data is stored as JSON blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache tables in client_data.db
const (
	TableSymbolSearch = "symbol_search"
	TableLatestQuotes = "latest_quotes"
	TableFXHistory    = "fx_history"
	TableFXLatest     = "fx_latest"
)

// AllTables lists every cache table, in cleanup order
var AllTables = []string{
	TableSymbolSearch,
	TableLatestQuotes,
	TableFXHistory,
	TableFXLatest,
}

// keyColumns maps each cache table to its primary key column. Table names
// are interpolated into SQL, so only names listed here are accepted.
var keyColumns = map[string]string{
	TableSymbolSearch: "cache_key",
	TableLatestQuotes: "cache_key",
	TableFXHistory:    "pair",
	TableFXLatest:     "pair",
}

// Repository is a JSON blob cache with per-entry expiry
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func keyColumn(table string) (string, error) {
	col, ok := keyColumns[table]
	if !ok {
		return "", fmt.Errorf("invalid table name: %s", table)
	}
	return col, nil
}

// Store saves data with expiration = now + ttl.
func (r *Repository) Store(ctx context.Context, table, key string, data interface{}, ttl time.Duration) error {
	col, err := keyColumn(table)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)",
		table, col,
	)

	if _, err := r.db.ExecContext(ctx, query, key, string(jsonData), r.now().Add(ttl).Unix()); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh returns data only if expires_at > now.
// Returns nil, nil if the key doesn't exist or data is expired.
func (r *Repository) GetIfFresh(ctx context.Context, table, key string) (json.RawMessage, error) {
	return r.lookup(ctx, table, key, " AND expires_at > ?", r.now().Unix())
}

// Get returns data regardless of expiration status, for use as a fallback
// when the provider is unreachable. Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(ctx context.Context, table, key string) (json.RawMessage, error) {
	return r.lookup(ctx, table, key, "")
}

func (r *Repository) lookup(ctx context.Context, table, key, cond string, args ...interface{}) (json.RawMessage, error) {
	col, err := keyColumn(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?%s", table, col, cond)

	var data string
	err = r.db.QueryRowContext(ctx, query, append([]interface{}{key}, args...)...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	return json.RawMessage(data), nil
}

// Load decodes a cached entry into dest. fresh selects between GetIfFresh
// and Get. Reports false when nothing usable is cached.
func (r *Repository) Load(ctx context.Context, table, key string, fresh bool, dest interface{}) bool {
	if r == nil {
		return false
	}

	var (
		data json.RawMessage
		err  error
	)
	if fresh {
		data, err = r.GetIfFresh(ctx, table, key)
	} else {
		data, err = r.Get(ctx, table, key)
	}
	if err != nil || data == nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(ctx context.Context, table string) (int64, error) {
	if _, err := keyColumn(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)

	result, err := r.db.ExecContext(ctx, query, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(ctx, table)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}

	return results, nil
}
