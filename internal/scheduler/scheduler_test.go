package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/portfolio-tracker/internal/database"
	testingpkg "github.com/aristath/portfolio-tracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string {
	return j.name
}

func TestAddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{name: "broken"})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	failing := &countingJob{name: "fail", err: errors.New("boom")}

	require.NoError(t, s.AddJob("@every 1s", job))
	require.NoError(t, s.AddJob("@every 1s", failing))
	assert.ElementsMatch(t, []string{"tick", "fail"}, s.Jobs())

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() > 0 && failing.runs.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now", err: errors.New("boom")}

	assert.Error(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop())
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(zerolog.Nop(), nil, nil)
	assert.NoError(t, job.Run()) // Should handle nil databases gracefully
}

func TestDatabaseJobs(t *testing.T) {
	ledgerDB, cleanupLedger := testingpkg.NewTestDB(t, database.NameLedger)
	defer cleanupLedger()
	cacheDB, cleanupCache := testingpkg.NewTestDB(t, database.NameClientData)
	defer cleanupCache()

	assert.NoError(t, NewCheckWALCheckpointsJob(zerolog.Nop(), ledgerDB, cacheDB).Run())

	check := NewCheckDatabasesJob(zerolog.Nop(), ledgerDB, nil, cacheDB)
	assert.Equal(t, "check_databases", check.Name())
	assert.NoError(t, check.Run())

	stats := DatabaseStats(ledgerDB, nil, cacheDB)
	require.Len(t, stats, 2)
	assert.Positive(t, stats[database.NameLedger].PageCount)
}
