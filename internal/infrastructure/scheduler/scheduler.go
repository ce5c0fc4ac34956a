package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a reconciliation job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job recomputes the totals of one part
type Job struct {
	ID          uuid.UUID
	PartNo      string
	Status      JobStatus
	Error       string
	Drifted     bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a new job instance
func NewJob(partNo string, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		PartNo:     partNo,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
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

// PrepareRetry resets the job for another attempt
func (j *Job) PrepareRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.Error = ""
}

// JobExecutor is the interface for executing reconciliation jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// PartLister lists the part numbers a sweep covers
type PartLister interface {
	ListPartNos(ctx context.Context) ([]string, error)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         100,
		JobTimeout:        time.Minute,
		RetryAttempts:     2,
		RetryDelay:        30 * time.Second,
	}
}

// SchedulerConfigFrom builds the scheduler configuration from the reconcile section
func SchedulerConfigFrom(cfg config.ReconcileConfig) SchedulerConfig {
	sc := DefaultSchedulerConfig()
	if cfg.Workers > 0 {
		sc.MaxConcurrentJobs = cfg.Workers
	}
	if cfg.JobTimeout > 0 {
		sc.JobTimeout = cfg.JobTimeout
	}
	sc.RetryAttempts = cfg.RetryAttempts
	if cfg.RetryDelay > 0 {
		sc.RetryDelay = cfg.RetryDelay
	}
	return sc
}

// Scheduler runs reconciliation jobs on a fixed pool of workers
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if config.MaxConcurrentJobs < 1 || config.QueueSize < 1 || config.JobTimeout <= 0 {
		return nil, fmt.Errorf("%w: workers, queue size and job timeout must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
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
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(s.ctx, i)
	}

	s.logger.Info("Reconcile scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the workers and waits for running jobs to return. Queued
// jobs are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconcile scheduler stopped", zap.Int("dropped_jobs", len(s.jobs)))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconcile scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job without blocking
func (s *Scheduler) SubmitJob(job *Job) error {
	runCtx, err := s.runContext()
	if err != nil {
		return err
	}

	select {
	case <-runCtx.Done():
		return ErrSchedulerNotRunning
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("part_no", job.PartNo),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleSweep queues one job per listed part, waiting for queue room
// when the queue is full. It returns the number of jobs queued.
func (s *Scheduler) ScheduleSweep(ctx context.Context, lister PartLister) (int, error) {
	runCtx, err := s.runContext()
	if err != nil {
		return 0, err
	}

	partNos, err := lister.ListPartNos(ctx)
	if err != nil {
		return 0, fmt.Errorf("list parts: %w", err)
	}

	for i, partNo := range partNos {
		select {
		case s.jobs <- NewJob(partNo, s.config.RetryAttempts):
		case <-runCtx.Done():
			return i, ErrSchedulerNotRunning
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	s.logger.Info("Reconcile sweep scheduled", zap.Int("parts", len(partNos)))
	return len(partNos), nil
}

func (s *Scheduler) runContext() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil, ErrSchedulerNotRunning
	}
	return s.ctx, nil
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job and schedules a delayed retry on failure
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.executor.Execute(jobCtx, job); err != nil {
		job.Fail(err.Error())
		s.logger.Error("Reconcile job failed",
			zap.Int("worker_id", workerID),
			zap.String("part_no", job.PartNo),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		if job.ShouldRetry() {
			job.PrepareRetry()
			time.AfterFunc(s.config.RetryDelay, func() {
				if err := s.SubmitJob(job); err != nil {
					s.logger.Warn("Failed to re-queue job for retry",
						zap.String("part_no", job.PartNo),
						zap.Error(err),
					)
				}
			})
		}
		return
	}

	job.Complete()
	s.logger.Debug("Reconcile job completed",
		zap.Int("worker_id", workerID),
		zap.String("part_no", job.PartNo),
		zap.Bool("drifted", job.Drifted),
	)
}
