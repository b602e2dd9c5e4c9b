// Package scheduler runs recurring background jobs, each guarded by an
// advisory lock so that only one process runs a job at a time
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/lock"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/metrics"
)

// Job is a named unit of recurring work
type Job struct {
	// Name is also the name of the advisory lock guarding the job
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Local jobs refresh per-process state and run in every process without a lock
	Local bool
}

// Scheduler runs jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	locker  lock.Locker
	lockTTL time.Duration

	mu  sync.RWMutex
	ctx context.Context

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New creates a scheduler. lockTTL bounds how long a crashed process can hold a job lock.
// locker may be nil when every job is Local.
func New(locker lock.Locker, lockTTL time.Duration) *Scheduler {
	return &Scheduler{
		// Overlapping ticks of the same job are skipped locally before touching the lock
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker:    locker,
		lockTTL:   lockTTL,
		ctx:       context.Background(),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the scheduler's name for logging
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Add schedules job every job.Interval
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s requires a positive interval", job.Name)
	}
	if !job.Local && s.locker == nil {
		return fmt.Errorf("job %s requires a locker", job.Name)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", job.Interval), func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()

		if _, err := s.RunJob(ctx, job); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("job", job.Name))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
	}
	return nil
}

// RunJob runs job once if its lock is free. It reports whether the job ran.
// Losing the lock to another process is not an error.
func (s *Scheduler) RunJob(ctx context.Context, job Job) (bool, error) {
	if job.Local {
		return true, s.run(ctx, job)
	}

	acquired, err := s.locker.Acquire(ctx, job.Name, lock.Options{TTL: s.lockTTL})
	if err != nil {
		return false, err
	}
	if !acquired {
		metrics.Indexer().ObserveJobSkipped(job.Name)
		logger.DebugCtx(ctx, "Job is running elsewhere, skipping", zap.String("job", job.Name))
		return false, nil
	}
	defer func() {
		if err := s.locker.Release(ctx, job.Name); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("job", job.Name))
		}
	}()

	return true, s.run(ctx, job)
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("job %s failed: %w", job.Name, err)
	}
	logger.DebugCtx(ctx, "Job finished",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Start runs the scheduled jobs until ctx is canceled or Stop is called.
// Running jobs are awaited before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer close(s.stoppedCh)

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	logger.InfoCtx(ctx, "Starting scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()

	select {
	case <-ctx.Done():
		logger.InfoCtx(ctx, "Scheduler stopping due to context cancellation")
	case <-s.stopCh:
		logger.InfoCtx(ctx, "Scheduler stop requested")
	}

	<-s.cron.Stop().Done()
	return nil
}

// Stop signals Start to return and waits for it, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopCh)

	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
