package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	return Config{
		Workers:       3,
		QueueSize:     64,
		JobTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func startScheduler(t *testing.T, cfg Config, exec JobExecutor) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, exec, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	return s
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"no queue", func(c *Config) { c.QueueSize = 0 }},
		{"no timeout", func(c *Config) { c.JobTimeout = 0 }},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewScheduler(cfg, JobExecutorFunc(func(context.Context, *Job) error { return nil }), zaptest.NewLogger(t))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestScheduler_SubmitWhenStopped(t *testing.T) {
	s, err := NewScheduler(testConfig(), JobExecutorFunc(func(context.Context, *Job) error { return nil }), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, s.Running())
	assert.ErrorIs(t, s.SubmitJob(NewJob(uuid.New(), time.Now(), 0)), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	stop(t, s)
	assert.ErrorIs(t, s.SubmitJob(NewJob(uuid.New(), time.Now(), 0)), ErrSchedulerNotRunning)
	// stopping twice is a no-op
	stop(t, s)
}

func TestScheduler_ScheduleSweepRunsEveryJob(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
	)
	s := startScheduler(t, testConfig(), JobExecutorFunc(func(_ context.Context, job *Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ProductionRunID]++
		return nil
	}))

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
	}
	queued, err := s.ScheduleSweep(ids, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10, queued)

	stop(t, s)
	require.Len(t, seen, 10)
	for _, id := range ids {
		assert.Equal(t, 1, seen[id])
	}
}

func TestScheduler_RetriesFailedJob(t *testing.T) {
	var attempts atomic.Int32
	s := startScheduler(t, testConfig(), JobExecutorFunc(func(context.Context, *Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("database unavailable")
		}
		return nil
	}))

	job := NewJob(uuid.New(), time.Now(), 2)
	require.NoError(t, s.SubmitJob(job))
	stop(t, s)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.NotNil(t, job.CompletedAt)
}

func TestScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	s := startScheduler(t, testConfig(), JobExecutorFunc(func(context.Context, *Job) error {
		attempts.Add(1)
		return errors.New("still broken")
	}))

	job := NewJob(uuid.New(), time.Now(), 1)
	require.NoError(t, s.SubmitJob(job))
	stop(t, s)

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "still broken", job.Error)
}

func TestScheduler_RecoversPanickingJob(t *testing.T) {
	s := startScheduler(t, testConfig(), JobExecutorFunc(func(context.Context, *Job) error {
		panic("boom")
	}))

	job := NewJob(uuid.New(), time.Now(), 0)
	require.NoError(t, s.SubmitJob(job))
	stop(t, s)

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "boom")
}

func TestScheduler_AppliesJobTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := startScheduler(t, cfg, JobExecutorFunc(func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	job := NewJob(uuid.New(), time.Now(), 0)
	require.NoError(t, s.SubmitJob(job))
	stop(t, s)

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), job.Error)
}

func TestScheduler_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	s := startScheduler(t, cfg, JobExecutorFunc(func(context.Context, *Job) error {
		started <- struct{}{}
		<-release
		return nil
	}))

	require.NoError(t, s.SubmitJob(NewJob(uuid.New(), time.Now(), 0)))
	<-started
	require.NoError(t, s.SubmitJob(NewJob(uuid.New(), time.Now(), 0)))
	assert.ErrorIs(t, s.SubmitJob(NewJob(uuid.New(), time.Now(), 0)), ErrJobQueueFull)

	close(release)
	stop(t, s)
}
