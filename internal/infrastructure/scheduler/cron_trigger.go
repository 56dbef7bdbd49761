package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RunLister lists the production runs a sweep covers
type RunLister interface {
	ProductionRunIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CronTriggerConfig holds configuration for the daily sweep trigger
type CronTriggerConfig struct {
	// Hour and Minute are the local time of day the sweep starts
	Hour   int
	Minute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		Hour:          3,
		Minute:        0,
		CheckInterval: time.Minute,
	}
}

// CronTrigger submits a sweep once a day
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	runs      RunLister
	clock     shared.Clock
	logger    *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	scheduler *Scheduler,
	runs RunLister,
	clock shared.Clock,
	logger *zap.Logger,
) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	return &CronTrigger{
		config:    config,
		scheduler: scheduler,
		runs:      runs,
		clock:     clock,
		logger:    logger,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sweep trigger started",
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sweep trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger starts the sweep once the configured time has been reached,
// at most once per calendar day
func (c *CronTrigger) checkAndTrigger(ctx context.Context) bool {
	now := c.clock.Now()
	currentDate := now.Format("2006-01-02")

	c.mu.Lock()
	if c.lastRunDate == currentDate {
		c.mu.Unlock()
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, now.Location())
	if now.Before(due) {
		c.mu.Unlock()
		return false
	}
	c.lastRunDate = currentDate
	c.mu.Unlock()

	c.logger.Info("Triggering daily reconciliation sweep", zap.String("date", currentDate))
	if _, err := c.TriggerNow(ctx); err != nil {
		c.logger.Error("Failed to schedule reconciliation sweep", zap.Error(err))
	}
	return true
}

// TriggerNow queues a sweep of every production run immediately
func (c *CronTrigger) TriggerNow(ctx context.Context) (int, error) {
	ids, err := c.runs.ProductionRunIDs(ctx)
	if err != nil {
		return 0, err
	}
	queued, err := c.scheduler.ScheduleSweep(ids, c.clock.Now())
	c.logger.Info("Scheduled reconciliation sweep",
		zap.Int("production_runs", len(ids)),
		zap.Int("queued", queued),
	)
	return queued, err
}
