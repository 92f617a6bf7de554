package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/portfolio-tracker/internal/di"
	"github.com/aristath/portfolio-tracker/internal/scheduler"
	"github.com/aristath/portfolio-tracker/internal/server"
	"github.com/google/subcommands"
)

type backupCmd struct {
	list bool
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "snapshot the ledger database" }
func (*backupCmd) Usage() string {
	return `portfolio backup [-list]

  Snapshots ledger.db into a tar.gz archive and uploads it to the backup
  bucket, or to <data dir>/backups when offsite backups are disabled.
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "List stored backups instead of creating one.")
}

func (c *backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	service := a.container.BackupService
	if c.list {
		backups, err := service.ListBackups(ctx)
		if err != nil {
			return fail(err)
		}
		for _, b := range backups {
			fmt.Printf("%s\t%d bytes\t%dh old\n", b.Filename, b.SizeBytes, b.AgeHours)
		}
		return subcommands.ExitSuccess
	}

	info, err := service.CreateAndUploadBackup(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s (%d bytes)\n", info.Filename, info.SizeBytes)

	if a.cfg.Backup != nil {
		if _, err := service.RotateOldBackups(ctx, a.cfg.Backup.RetentionDays); err != nil {
			a.log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}
	return subcommands.ExitSuccess
}

type serveCmd struct{}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API and background jobs" }
func (*serveCmd) Usage() string {
	return `portfolio serve

  Serves the HTTP API on PORT and runs scheduled price refreshes, cache
  cleanup, database maintenance and backups until interrupted.
`
}

func (*serveCmd) SetFlags(*flag.FlagSet) {}

func (*serveCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		return fail(err)
	}
	defer a.close()

	log := a.log
	log.Info().Msg("Starting portfolio tracker")

	sched := scheduler.New(log)
	if err := di.ScheduleJobs(sched, a.jobs, a.cfg); err != nil {
		return fail(err)
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:             log,
		Port:            a.cfg.Port,
		DevMode:         a.cfg.DevMode,
		DataDir:         a.cfg.DataDir,
		DefaultProvider: a.cfg.DefaultProvider,
		Container:       a.container,
		Jobs:            a.jobs,
		Scheduler:       sched,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info().Int("port", a.cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal or a failed listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	status := subcommands.ExitSuccess
	select {
	case <-quit:
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server stopped")
		status = subcommands.ExitFailure
	}

	log.Info().Msg("Shutting down server...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return status
}
