// Package scheduler runs the nightly reconciliation sweep over every
// production run on a small worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a sweep job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job reconciles (and optionally archives) one production run
type Job struct {
	ID              uuid.UUID
	ProductionRunID uuid.UUID
	// SweepDay is the day the sweep was triggered for
	SweepDay    time.Time
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a new job instance
func NewJob(runID uuid.UUID, sweepDay time.Time, maxRetries int) *Job {
	return &Job{
		ID:              uuid.New(),
		ProductionRunID: runID,
		SweepDay:        sweepDay,
		Status:          JobStatusPending,
		MaxRetries:      maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry resets the job for another attempt
func (j *Job) ScheduleRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.Error = ""
}

// JobExecutor executes sweep jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// JobExecutorFunc adapts a function to JobExecutor
type JobExecutorFunc func(ctx context.Context, job *Job) error

// Execute calls f(ctx, job)
func (f JobExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Config holds scheduler configuration
type Config struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     1024,
		JobTimeout:    5 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    time.Minute,
	}
}

func (c Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Scheduler feeds sweep jobs to a fixed pool of workers
type Scheduler struct {
	config   Config
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
	}, nil
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *Job, s.config.QueueSize)

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, s.jobs)
	}

	s.logger.Info("Sweep scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop stops accepting jobs, lets the workers drain the queue and waits for them
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// Running reports whether the scheduler accepts jobs
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job without blocking
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("production_run_id", job.ProductionRunID.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleSweep queues one job per production run and returns how many were queued
func (s *Scheduler) ScheduleSweep(runIDs []uuid.UUID, day time.Time) (int, error) {
	for i, id := range runIDs {
		if err := s.SubmitJob(NewJob(id, day, s.config.RetryAttempts)); err != nil {
			return i, err
		}
	}
	return len(runIDs), nil
}

func (s *Scheduler) worker(ctx context.Context, workerID int, jobs <-chan *Job) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))
	for job := range jobs {
		s.processJob(ctx, job, workerID)
	}
	s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
}

// processJob runs a job, retrying in place after RetryDelay while attempts remain
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	for {
		if ctx.Err() != nil {
			job.Fail(ctx.Err().Error())
			return
		}

		job.Start()
		err := s.execute(ctx, job)
		if err == nil {
			job.Complete()
			s.logger.Info("Job completed successfully",
				zap.Int("worker_id", workerID),
				zap.String("job_id", job.ID.String()),
				zap.String("production_run_id", job.ProductionRunID.String()),
			)
			return
		}

		job.Fail(err.Error())
		s.logger.Error("Job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("production_run_id", job.ProductionRunID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		if !job.ShouldRetry() {
			return
		}
		job.ScheduleRetry()
		s.logger.Info("Job scheduled for retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
		)

		timer := time.NewTimer(s.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			job.Fail(ctx.Err().Error())
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.executor.Execute(jobCtx, job)
}
