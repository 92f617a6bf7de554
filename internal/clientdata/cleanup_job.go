package clientdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob purges expired provider responses so the cache file does not
// grow with symbols that are no longer held
type CleanupJob struct {
	repo    *Repository
	timeout time.Duration
	log     zerolog.Logger
}

// NewCleanupJob creates the daily cache purge
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:    repo,
		timeout: time.Minute,
		log:     log.With().Str("job", "client_data_cleanup").Logger(),
	}
}

// Run deletes every expired row across the cache tables
func (j *CleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.repo.DeleteAllExpired(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to purge expired cache entries")
		return err
	}

	perTable := zerolog.Dict()
	var total int64
	for _, table := range AllTables {
		if n := deleted[table]; n > 0 {
			perTable.Int64(table, n)
			total += n
		}
	}

	event := j.log.Debug()
	if total > 0 {
		event = j.log.Info()
	}
	event.Dict("deleted", perTable).Int64("total_deleted", total).Msg("Cache purge finished")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "client_data_cleanup"
}
