package main

import (
	"fmt"
	"os"

	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/aristath/portfolio-tracker/internal/di"
	"github.com/aristath/portfolio-tracker/pkg/logger"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// app is the wired application shared by every command
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
	jobs      *di.JobInstances
}

// bootstrap loads configuration and wires dependencies. Logs go to stderr
// so command output on stdout stays clean.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to wire dependencies: %w", err)
	}

	return &app{cfg: cfg, log: log, container: container, jobs: jobs}, nil
}

func (a *app) close() {
	if err := a.container.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close databases")
	}
}

// fail reports err on stderr and returns the failure status
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}
