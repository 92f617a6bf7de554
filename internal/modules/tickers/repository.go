package tickers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// tickerColumns is the list of columns for the tickers table
// Used to avoid SELECT * which can break when schema changes
const tickerColumns = `t.id, t.symbol, t.name, t.currency, t.exchange, t.asset_type, t.provider,
t.last_price, t.last_price_updated_at`

const assetColumns = `COALESCE(a.id, 0), COALESCE(a.name, t.name), COALESCE(a.asset_type, t.asset_type),
COALESCE(a.isin, ''), COALESCE(a.sector, ''), COALESCE(a.industry, '')`

// Repository handles ticker, asset and alias persistence in the ledger database
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ticker repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "tickers").Logger(),
	}
}

// InsertOrIgnore stores a resolved listing and registers aliases for it.
// Ticker symbols are unique, so concurrent inserts of the same listing
// converge on one row. Returns the ticker id and whether a row was created.
func (r *Repository) InsertOrIgnore(ctx context.Context, q Querier, listing domain.Listing, aliases ...string) (int64, bool, error) {
	t := listing.Ticker
	if !t.Provider.Valid() {
		return 0, false, fmt.Errorf("%w: ticker %s has no provider", domain.ErrPersistence, t.Symbol)
	}

	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO tickers (symbol, name, currency, exchange, asset_type, provider)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.Symbol, t.Name, string(t.Currency), t.Exchange, string(t.AssetType), t.Provider)
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to insert ticker %s: %v", domain.ErrPersistence, t.Symbol, err)
	}
	affected, _ := res.RowsAffected()

	var id int64
	if err := q.QueryRowContext(ctx, "SELECT id FROM tickers WHERE symbol = ?", t.Symbol).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("%w: failed to read ticker id for %s: %v", domain.ErrPersistence, t.Symbol, err)
	}

	a := listing.Asset
	if a.Name == "" {
		a.Name = t.Name
	}
	if a.Type == "" {
		a.Type = t.AssetType
	}
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO assets (ticker_id, name, asset_type, isin, sector, industry)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, a.Name, string(a.Type), nullString(a.ISIN), nullString(a.Sector), nullString(a.Industry)); err != nil {
		return 0, false, fmt.Errorf("%w: failed to insert asset for %s: %v", domain.ErrPersistence, t.Symbol, err)
	}

	for _, alias := range append([]string{t.Symbol}, aliases...) {
		alias = normalizeAlias(alias)
		if alias == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			"INSERT OR REPLACE INTO symbol_aliases (alias, ticker_id) VALUES (?, ?)", alias, id); err != nil {
			return 0, false, fmt.Errorf("%w: failed to insert alias %s: %v", domain.ErrPersistence, alias, err)
		}
	}

	return id, affected > 0, nil
}

// Lookup returns the ticker a CSV spelling maps to, or nil if unknown
func (r *Repository) Lookup(ctx context.Context, q Querier, alias string) (*domain.Ticker, error) {
	row := q.QueryRowContext(ctx, "SELECT "+tickerColumns+`
		FROM symbol_aliases s JOIN tickers t ON t.id = s.ticker_id
		WHERE s.alias = ?`, normalizeAlias(alias))

	t, err := scanTicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", alias, err)
	}
	return &t, nil
}

// GetByID returns a ticker by id, or nil if not found
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Ticker, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+tickerColumns+" FROM tickers t WHERE t.id = ?", id)

	t, err := scanTicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker %d: %w", id, err)
	}
	return &t, nil
}

// List returns every stored ticker ordered by symbol
func (r *Repository) List(ctx context.Context) ([]domain.Ticker, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+tickerColumns+" FROM tickers t ORDER BY t.symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListListings returns every stored ticker together with its asset metadata
func (r *Repository) ListListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+tickerColumns+", "+assetColumns+`
		FROM tickers t LEFT JOIN assets a ON a.ticker_id = t.id
		ORDER BY t.symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var (
			tr        tickerRow
			l         domain.Listing
			assetType string
		)
		dest := append(tr.dest(),
			&l.Asset.ID, &l.Asset.Name, &assetType, &l.Asset.ISIN, &l.Asset.Sector, &l.Asset.Industry)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l.Ticker = tr.ticker()
		l.Asset.Type = domain.AssetType(assetType)
		l.Asset.TickerID = l.Ticker.ID
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdatePrice writes price and timestamp in a single statement so a
// ticker is never left with one without the other
func (r *Repository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickers
		SET last_price = ?, last_price_updated_at = ?, updated_at = ?
		WHERE id = ?
	`, price.String(), at.Unix(), at.Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to update price for ticker %d: %v", domain.ErrPersistence, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: ticker %d", domain.ErrTickerNotFound, id)
	}
	return nil
}

// Truncate removes every ticker, asset and alias. Transactions reference
// tickers and must be removed first.
func (r *Repository) Truncate(ctx context.Context, q Querier) error {
	for _, table := range []string{"symbol_aliases", "assets", "tickers"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%w: failed to truncate %s: %v", domain.ErrPersistence, table, err)
		}
	}
	r.log.Info().Msg("Tickers truncated")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// tickerRow holds the raw column values that need conversion after Scan
type tickerRow struct {
	t         domain.Ticker
	currency  string
	assetType string
	updatedAt sql.NullInt64
}

func (r *tickerRow) dest() []interface{} {
	return []interface{}{&r.t.ID, &r.t.Symbol, &r.t.Name, &r.currency, &r.t.Exchange, &r.assetType,
		&r.t.Provider, &r.t.LastPrice, &r.updatedAt}
}

func (r *tickerRow) ticker() domain.Ticker {
	t := r.t
	t.Currency = domain.Currency(r.currency)
	t.AssetType = domain.AssetType(r.assetType)
	if r.updatedAt.Valid {
		at := time.Unix(r.updatedAt.Int64, 0).UTC()
		t.LastPriceUpdatedAt = &at
	}
	return t
}

func scanTicker(row rowScanner) (domain.Ticker, error) {
	var tr tickerRow
	if err := row.Scan(tr.dest()...); err != nil {
		return domain.Ticker{}, err
	}
	return tr.ticker(), nil
}

func normalizeAlias(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
