package di

import (
	"fmt"

	"github.com/aristath/portfolio-tracker/internal/config"
	"github.com/rs/zerolog"
)

// Wire opens the databases and builds every repository, client, service and
// job on top of them. On failure anything already opened is closed.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	stages := []struct {
		name string
		run  func() error
	}{
		{"repositories", func() error { return InitializeRepositories(container, log) }},
		{"services", func() error { return InitializeServices(container, cfg, log) }},
	}
	for _, stage := range stages {
		if err := stage.run(); err != nil {
			container.Close()
			return nil, nil, fmt.Errorf("failed to initialize %s: %w", stage.name, err)
		}
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().
		Int("databases", len(container.Databases())).
		Int("jobs", len(jobs.All())).
		Msg("Dependency wiring complete")
	return container, jobs, nil
}
