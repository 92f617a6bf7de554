package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// ImportSummary describes one import run. It is returned to the caller and
// recorded in the import_runs audit table after the run commits.
type ImportSummary struct {
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	RunID           string          `json:"run_id"`
	Source          string          `json:"source"`
	DefaultProvider domain.Provider `json:"default_provider"`
	RowsRead        int             `json:"rows_read"`
	RowsImported    int             `json:"rows_imported"`
	RowsSkipped     int             `json:"rows_skipped"`
	NewTickers      int             `json:"new_tickers"`
	OversoldRows    int             `json:"oversold_rows"`
	Watermark       int64           `json:"watermark"`
}

// Duration returns how long the run took
func (s ImportSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// ImportRunRepository records completed import runs
type ImportRunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewImportRunRepository creates a new import run repository
func NewImportRunRepository(db *sql.DB, log zerolog.Logger) *ImportRunRepository {
	return &ImportRunRepository{
		db:  db,
		log: log.With().Str("repo", "import_runs").Logger(),
	}
}

// Insert records a completed run
func (r *ImportRunRepository) Insert(ctx context.Context, s ImportSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_runs (
			id, source, default_provider, started_at, finished_at,
			rows_read, rows_imported, rows_skipped, new_tickers, oversold_rows, watermark
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.RunID, s.Source, s.DefaultProvider, s.StartedAt.Unix(), s.FinishedAt.Unix(),
		s.RowsRead, s.RowsImported, s.RowsSkipped, s.NewTickers, s.OversoldRows, s.Watermark,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to record import run %s: %v", domain.ErrPersistence, s.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (r *ImportRunRepository) List(ctx context.Context, limit int) ([]ImportSummary, error) {
	query := `
		SELECT id, source, default_provider, started_at, finished_at,
			rows_read, rows_imported, rows_skipped, new_tickers, oversold_rows, watermark
		FROM import_runs
		ORDER BY started_at DESC, id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var out []ImportSummary
	for rows.Next() {
		var (
			s                 ImportSummary
			started, finished int64
		)
		if err := rows.Scan(&s.RunID, &s.Source, &s.DefaultProvider, &started, &finished,
			&s.RowsRead, &s.RowsImported, &s.RowsSkipped, &s.NewTickers, &s.OversoldRows, &s.Watermark); err != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", err)
		}
		s.StartedAt = time.Unix(started, 0).UTC()
		s.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}
