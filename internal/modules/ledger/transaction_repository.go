package ledger

import (
	"context"
	"database/sql"
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

// transactionColumns is the list of columns for the transactions table
// joined with tickers (aliases x and t)
const transactionColumns = `x.id, x.transaction_no, x.transaction_date, x.transaction_type, x.ticker_id, t.symbol,
x.broker, x.currency, x.exchange_rate, x.quantity, x.price, x.fees, x.amount,
x.cumulative_units, x.cumulative_cost, x.cost_of_units_sold, x.realized_gains, x.dividends_collected,
COALESCE(x.import_run_id, '')`

// TransactionFilter narrows List results. Zero values match everything.
type TransactionFilter struct {
	Symbol string
	Broker string
	Limit  int
}

// GroupHistory is the replay input for one (ticker, broker) pair: the
// lot-affecting (amount, signed quantity) pairs in transaction order and
// the state cached on the group's latest row
type GroupHistory struct {
	Amounts    []decimal.Decimal
	Quantities []decimal.Decimal
	State      domain.PositionState
}

// Append adds a lot-affecting pair to the replay input
func (h *GroupHistory) Append(amount, signedQuantity decimal.Decimal) {
	h.Amounts = append(h.Amounts, amount)
	h.Quantities = append(h.Quantities, signedQuantity)
}

// GroupSnapshot is the latest cached state of a (ticker, broker) pair plus
// the gains accumulated over every transaction of the pair
type GroupSnapshot struct {
	LastDate           time.Time
	Broker             string
	State              domain.PositionState
	RealizedGains      decimal.Decimal
	DividendsCollected decimal.Decimal
	TickerID           int64
	LastTransactionNo  int64
}

// TransactionRepository handles transaction persistence in the ledger database
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

// MaxTransactionNo returns the idempotency watermark: the highest persisted
// transaction number, or 0 for an empty ledger
func (r *TransactionRepository) MaxTransactionNo(ctx context.Context, q Querier) (int64, error) {
	var watermark int64
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(transaction_no), 0) FROM transactions").Scan(&watermark); err != nil {
		return 0, fmt.Errorf("%w: failed to read watermark: %v", domain.ErrPersistence, err)
	}
	return watermark, nil
}

// Insert stores a transaction with its cached state. A row with the same
// transaction number is left untouched and Insert reports false.
func (r *TransactionRepository) Insert(ctx context.Context, q Querier, t *domain.Transaction) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			transaction_no, transaction_date, transaction_type, ticker_id, broker, currency,
			exchange_rate, quantity, price, fees, amount,
			cumulative_units, cumulative_cost, cost_of_units_sold, realized_gains, dividends_collected,
			import_run_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.TransactionNo,
		t.Date.Format(dateLayout),
		string(t.Type),
		t.TickerID,
		t.Broker,
		string(t.Currency),
		t.ExchangeRate.String(),
		t.Quantity.Abs().String(),
		t.Price.String(),
		t.Fees.String(),
		t.Amount.String(),
		t.State.CumulativeUnits.String(),
		t.State.CumulativeCost.String(),
		t.State.CostOfUnitsSold.String(),
		t.Gains.RealizedGains.String(),
		t.Gains.DividendsCollected.String(),
		nullString(t.ImportRunID),
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to insert transaction %d: %v", domain.ErrPersistence, t.TransactionNo, err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return true, nil
}

// History loads the replay input for a (ticker, broker) pair. Dividends do
// not touch lots and only contribute their cached state.
func (r *TransactionRepository) History(ctx context.Context, q Querier, tickerID int64, broker string) (*GroupHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT transaction_type, quantity, amount, cumulative_units, cumulative_cost, cost_of_units_sold
		FROM transactions
		WHERE ticker_id = ? AND broker = ?
		ORDER BY transaction_no
	`, tickerID, broker)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query history for ticker %d/%s: %v", domain.ErrPersistence, tickerID, broker, err)
	}
	defer rows.Close()

	h := &GroupHistory{}
	for rows.Next() {
		var (
			txType   string
			quantity decimal.Decimal
			amount   decimal.Decimal
		)
		if err := rows.Scan(&txType, &quantity, &amount,
			&h.State.CumulativeUnits, &h.State.CumulativeCost, &h.State.CostOfUnitsSold); err != nil {
			return nil, fmt.Errorf("%w: failed to scan history row: %v", domain.ErrPersistence, err)
		}
		t := domain.Transaction{Type: domain.TransactionType(txType), Quantity: quantity}
		if t.Type != domain.TransactionTypeDividend {
			h.Append(amount, t.SignedQuantity())
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read history: %v", domain.ErrPersistence, err)
	}
	return h, nil
}

// List returns transactions newest first
func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Symbol != "" {
		where = append(where, "t.symbol = ?")
		args = append(args, strings.ToUpper(filter.Symbol))
	}
	if filter.Broker != "" {
		where = append(where, "x.broker = ?")
		args = append(args, filter.Broker)
	}

	query := "SELECT " + transactionColumns + " FROM transactions x JOIN tickers t ON t.id = x.ticker_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY x.transaction_no DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestPerGroup returns one snapshot per (ticker, broker) pair, most
// recently traded first
func (r *TransactionRepository) LatestPerGroup(ctx context.Context) ([]GroupSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT x.ticker_id, x.broker, x.transaction_no, x.transaction_date,
			x.cumulative_units, x.cumulative_cost, x.cost_of_units_sold
		FROM transactions x
		JOIN (
			SELECT ticker_id, broker, MAX(transaction_no) AS max_no
			FROM transactions
			GROUP BY ticker_id, broker
		) g ON x.transaction_no = g.max_no
		ORDER BY x.transaction_no DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []GroupSnapshot
		index = make(map[groupKey]int)
	)
	for rows.Next() {
		var (
			s    GroupSnapshot
			date string
		)
		if err := rows.Scan(&s.TickerID, &s.Broker, &s.LastTransactionNo, &date,
			&s.State.CumulativeUnits, &s.State.CumulativeCost, &s.State.CostOfUnitsSold); err != nil {
			return nil, fmt.Errorf("failed to scan latest transaction: %w", err)
		}
		if s.LastDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: invalid stored date %q", domain.ErrPersistence, date)
		}
		s.RealizedGains = decimal.Zero
		s.DividendsCollected = decimal.Zero
		index[groupKey{s.TickerID, s.Broker}] = len(out)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	// Gains are summed here rather than in SQL to keep decimal precision
	gains, err := r.db.QueryContext(ctx, `
		SELECT ticker_id, broker, realized_gains, dividends_collected
		FROM transactions
		WHERE transaction_type IN ('Sell', 'Div')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gains: %w", err)
	}
	defer gains.Close()

	for gains.Next() {
		var (
			key                 groupKey
			realized, dividends decimal.Decimal
		)
		if err := gains.Scan(&key.tickerID, &key.broker, &realized, &dividends); err != nil {
			return nil, fmt.Errorf("failed to scan gains: %w", err)
		}
		i, ok := index[key]
		if !ok {
			continue
		}
		out[i].RealizedGains = out[i].RealizedGains.Add(realized)
		out[i].DividendsCollected = out[i].DividendsCollected.Add(dividends)
	}
	return out, gains.Err()
}

// Count returns the number of persisted transactions
func (r *TransactionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// Truncate removes every transaction. Stored fx rates are kept.
func (r *TransactionRepository) Truncate(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
		return fmt.Errorf("%w: failed to truncate transactions: %v", domain.ErrPersistence, err)
	}
	r.log.Info().Msg("Transactions truncated")
	return nil
}

type groupKey struct {
	tickerID int64
	broker   string
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t                        domain.Transaction
		date, txType, currencyCd string
	)
	err := row.Scan(
		&t.ID, &t.TransactionNo, &date, &txType, &t.TickerID, &t.Symbol,
		&t.Broker, &currencyCd, &t.ExchangeRate, &t.Quantity, &t.Price, &t.Fees, &t.Amount,
		&t.State.CumulativeUnits, &t.State.CumulativeCost, &t.State.CostOfUnitsSold,
		&t.Gains.RealizedGains, &t.Gains.DividendsCollected,
		&t.ImportRunID,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	if t.Date, err = time.Parse(dateLayout, date); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: invalid stored date %q", domain.ErrPersistence, date)
	}
	if t.Type, err = domain.ParseTransactionType(txType); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	t.Currency = domain.Currency(currencyCd)
	return t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
