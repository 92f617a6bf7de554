package di

import (
	"errors"
	"fmt"
	"time"

	"github.com/aristath/portfolio-tracker/internal/clientdata"
	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/aristath/portfolio-tracker/internal/modules/prices"
	"github.com/aristath/portfolio-tracker/internal/reliability"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
	"github.com/rs/zerolog"
)

// Fixed schedules (cron with seconds). The price refresh and backup
// schedules come from configuration.
const (
	clientDataCleanupSchedule = "0 0 4 * * *"
	walCheckpointSchedule     = "0 */15 * * * *"
	databaseCheckSchedule     = "0 5 * * * *"
	maintenanceSchedule       = "0 0 3 * * *"
)

// priceRefreshTimeout bounds one scheduled refresh cycle
const priceRefreshTimeout = 10 * time.Minute

// RegisterJobs creates every scheduled job. Jobs are returned for manual
// triggering; ScheduleJobs hands them to a scheduler.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, errors.New("container cannot be nil")
	}

	databases := container.Databases()
	instances := &JobInstances{
		PriceRefresh:      prices.NewRefreshJob(container.Refresher, priceRefreshTimeout, log),
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
		WALCheckpoints:    scheduler.NewCheckWALCheckpointsJob(log, databases...),
		DatabaseCheck:     scheduler.NewCheckDatabasesJob(log, databases...),
		Maintenance:       reliability.NewMaintenanceJob(cfg.DataDir, container.ClientDataDB, log, databases...),
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		instances.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
	}

	return instances, nil
}

// ScheduleJobs registers each job with s on its schedule
func ScheduleJobs(s *scheduler.Scheduler, jobs *JobInstances, cfg *config.Config) error {
	schedules := map[string]string{
		jobs.PriceRefresh.Name():      cfg.PriceRefreshSchedule,
		jobs.ClientDataCleanup.Name(): clientDataCleanupSchedule,
		jobs.WALCheckpoints.Name():    walCheckpointSchedule,
		jobs.DatabaseCheck.Name():     databaseCheckSchedule,
		jobs.Maintenance.Name():       maintenanceSchedule,
	}
	if jobs.Backup != nil {
		schedules[jobs.Backup.Name()] = cfg.Backup.Schedule
	}

	for _, job := range jobs.All() {
		if err := s.AddJob(schedules[job.Name()], job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
		}
	}
	return nil
}
