// Package scheduler runs the periodic limit-order sweep and portfolio
// recalculation. Each pass runs under a lock so that two instances, or a slow
// pass and the next tick, never overlap; a pass that cannot take the lock is
// skipped.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"paper-ledger/internal/idempotency"
	"paper-ledger/internal/lock"
	"paper-ledger/internal/orders"
)

const (
	SweepLockKey       = "jobs:sweep-limit-orders"
	RecalcLockKey      = "jobs:recalculate-portfolios"
	IdempotencyLockKey = "jobs:expire-idempotency-keys"
)

type Sweeper interface {
	SweepPendingLimitOrders(ctx context.Context) (orders.SweepReport, error)
}

type Recalculator interface {
	RecalculateAll(ctx context.Context) (int, error)
}

// Job is one periodic task.
type Job struct {
	Name     string
	LockKey  string
	Interval time.Duration
	// LockTTL bounds how long a crashed holder can block the job. Defaults to
	// twice the interval.
	LockTTL time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	locker lock.Locker
	log    *slog.Logger
	jobs   []Job
}

func New(locker lock.Locker, log *slog.Logger) *Scheduler {
	return &Scheduler{locker: locker, log: log}
}

func (s *Scheduler) Add(job Job) {
	if job.LockTTL <= 0 {
		job.LockTTL = 2 * job.Interval
	}
	s.jobs = append(s.jobs, job)
}

// Start runs every job on its own ticker until ctx is done, then waits for
// in-flight passes to return.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs a single pass of job if its lock is free. It reports whether
// the pass ran.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) bool {
	ok, err := s.locker.TryLock(ctx, job.LockKey, job.LockTTL)
	if err != nil {
		s.log.Warn("job lock failed", "job", job.Name, "error", err)
		return false
	}
	if !ok {
		s.log.Debug("job already running, skipped", "job", job.Name)
		return false
	}
	defer func() {
		// Release on a fresh context so shutdown does not strand the lock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.locker.Unlock(unlockCtx, job.LockKey); err != nil {
			s.log.Warn("job unlock failed", "job", job.Name, "error", err)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return true
	}
	s.log.Debug("job finished", "job", job.Name, "duration", time.Since(start))
	return true
}

// SweepJob fills crossed limit orders.
func SweepJob(engine Sweeper, interval time.Duration, log *slog.Logger) Job {
	return Job{
		Name:     "sweep",
		LockKey:  SweepLockKey,
		Interval: interval,
		Run: func(ctx context.Context) error {
			report, err := engine.SweepPendingLimitOrders(ctx)
			if err != nil {
				return err
			}
			if report.Filled > 0 || report.Failed > 0 {
				log.Info("limit sweep", "examined", report.Examined, "filled", report.Filled,
					"skipped", report.Skipped, "failed", report.Failed)
			}
			return nil
		},
	}
}

// RecalcJob revalues every portfolio.
func RecalcJob(engine Recalculator, interval time.Duration, log *slog.Logger) Job {
	return Job{
		Name:     "recalculate",
		LockKey:  RecalcLockKey,
		Interval: interval,
		Run: func(ctx context.Context) error {
			failed, err := engine.RecalculateAll(ctx)
			if err != nil {
				return err
			}
			if failed > 0 {
				log.Warn("portfolio recalculation incomplete", "failed", failed)
			}
			return nil
		},
	}
}

// IdempotencyExpiryJob drops expired keys from an in-process idempotency
// store. Redis expires its keys itself.
func IdempotencyExpiryJob(keys *idempotency.MemoryStore, interval time.Duration, log *slog.Logger) Job {
	return Job{
		Name:     "expire-idempotency-keys",
		LockKey:  IdempotencyLockKey,
		Interval: interval,
		Run: func(ctx context.Context) error {
			if dropped := keys.Sweep(); dropped > 0 {
				log.Debug("idempotency keys expired", "dropped", dropped, "remaining", keys.Len())
			}
			return nil
		},
	}
}
