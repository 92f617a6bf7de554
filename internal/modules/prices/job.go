package prices

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/portfolio-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// RefreshJob runs a refresh cycle on the scheduler
type RefreshJob struct {
	refresher *Refresher
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRefreshJob creates a scheduled price refresh bounded by timeout
func NewRefreshJob(refresher *Refresher, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		refresher: refresher,
		timeout:   timeout,
		log:       log.With().Str("job", "price_refresh").Logger(),
	}
}

// Run refreshes every ticker. Partial failures are already logged per
// ticker by the refresher and do not fail the job.
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.refresher.RefreshAll(ctx)
	if errors.Is(err, domain.ErrPartialRefresh) {
		j.log.Warn().Strs("failed", report.FailedSymbols()).Msg("Some prices were not refreshed")
		return nil
	}
	return err
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "price_refresh"
}
