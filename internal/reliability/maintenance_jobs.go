package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/portfolio-tracker/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// BackupJob uploads a snapshot and rotates old ones on the scheduler
type BackupJob struct {
	service       *BackupService
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a scheduled backup keeping retentionDays of history
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		timeout:       10 * time.Minute,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Run executes the backup job. A failed rotation is logged and does not
// fail the job because the new backup is already stored.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "backup"
}

// minFreeDiskBytes is the free space below which maintenance fails
const minFreeDiskBytes = 500 * 1000 * 1000

// MaintenanceJob truncates WAL files, checks free disk space and compacts
// the response cache
type MaintenanceJob struct {
	databases []*database.DB
	cache     *database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates a daily maintenance job. cache is vacuumed on
// every run; databases only get WAL checkpoints.
func NewMaintenanceJob(dataDir string, cache *database.DB, log zerolog.Logger, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		cache:     cache,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		// Not critical: the next run retries
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if j.cache != nil {
		if _, err := j.cache.Conn().Exec("VACUUM"); err != nil {
			j.log.Warn().Err(err).Str("database", j.cache.Name()).Msg("Vacuum failed")
		}
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Maintenance completed successfully")
	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_percent", usage.UsedPercent).Msg("Disk space check")

	if usage.Free < minFreeDiskBytes {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free on %s", availableGB, j.dataDir)
	}
	if usage.UsedPercent > 90 {
		j.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}
