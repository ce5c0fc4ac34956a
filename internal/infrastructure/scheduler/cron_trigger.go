package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// DailyHour and DailyMinute give the local time of the sweep
	DailyHour   int
	DailyMinute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		DailyHour:     2, // 2am
		DailyMinute:   0,
		CheckInterval: time.Minute,
	}
}

// CronTriggerConfigFrom builds the trigger configuration from the reconcile section
func CronTriggerConfigFrom(cfg config.ReconcileConfig) CronTriggerConfig {
	tc := CronTriggerConfig{
		DailyHour:     cfg.Hour,
		DailyMinute:   cfg.Minute,
		CheckInterval: cfg.CheckInterval,
	}
	if tc.CheckInterval <= 0 {
		tc.CheckInterval = time.Minute
	}
	return tc
}

// CronTrigger schedules a reconcile sweep once a day
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	parts     PartLister
	logger    *zap.Logger
	now       func() time.Time

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
	parts PartLister,
	logger *zap.Logger,
) *CronTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		scheduler: scheduler,
		parts:     parts,
		logger:    logger,
		now:       time.Now,
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

	c.logger.Info("Reconcile trigger started",
		zap.Int("daily_hour", c.config.DailyHour),
		zap.Int("daily_minute", c.config.DailyMinute),
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
		c.logger.Info("Reconcile trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop checks periodically if it's time to sweep
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

// checkAndTrigger sweeps at most once per calendar day, at or after the
// configured time
func (c *CronTrigger) checkAndTrigger(ctx context.Context) bool {
	now := c.now()
	currentDate := now.Format("2006-01-02")

	c.mu.Lock()
	if c.lastRunDate == currentDate {
		c.mu.Unlock()
		return false
	}
	due := now.Hour() > c.config.DailyHour ||
		(now.Hour() == c.config.DailyHour && now.Minute() >= c.config.DailyMinute)
	if !due {
		c.mu.Unlock()
		return false
	}
	c.lastRunDate = currentDate
	c.mu.Unlock()

	c.logger.Info("Triggering daily reconcile sweep")
	if _, err := c.scheduler.ScheduleSweep(ctx, c.parts); err != nil {
		c.logger.Error("Failed to schedule reconcile sweep", zap.Error(err))
	}
	return true
}

// TriggerNow schedules a sweep immediately
func (c *CronTrigger) TriggerNow(ctx context.Context) (int, error) {
	return c.scheduler.ScheduleSweep(ctx, c.parts)
}
