// Package scheduler runs the booking engine's time-driven work: periodic
// sweeps on every worker replica and delayed per-booking tasks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"saheli/internal/modules/booking"
	"saheli/internal/pkg/lock"
)

// Job is one periodic sweep.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (booking.SweepResult, error)
}

// Sweeper runs each job on its interval. A job only runs on the replica that
// wins its leader lock, and the lease is refreshed while the job runs.
type Sweeper struct {
	log       *zap.Logger
	locker    lock.Locker
	leaderTTL time.Duration
	jobs      []Job

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewSweeper(locker lock.Locker, leaderTTL time.Duration, log *zap.Logger, jobs ...Job) *Sweeper {
	if leaderTTL <= 0 {
		leaderTTL = 50 * time.Second
	}
	return &Sweeper{log: log.Named("sweeper"), locker: locker, leaderTTL: leaderTTL, jobs: jobs}
}

// BookingJobs wires the four booking sweeps to their intervals.
func BookingJobs(svc *booking.Service, expire, autoStart, autoComplete, reminder time.Duration) []Job {
	return []Job{
		{Name: "expire", Interval: expire, Run: svc.ExpirePending},
		{Name: "auto_start", Interval: autoStart, Run: svc.AutoStart},
		{Name: "auto_complete", Interval: autoComplete, Run: svc.AutoComplete},
		{Name: "reminder", Interval: reminder, Run: svc.SendReminders},
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, job := range s.jobs {
		job := job
		c.Schedule(cron.Every(job.Interval), cron.FuncJob(func() { s.RunOnce(runCtx, job) }))
		s.log.Info("sweep scheduled", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
}

// Stop cancels in-flight sweeps and waits for them to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunOnce runs job if this replica gets the leader lock. It reports whether
// the job ran.
func (s *Sweeper) RunOnce(ctx context.Context, job Job) bool {
	key := "sweep:leader:" + job.Name
	lease, err := s.locker.TryAcquire(ctx, key, s.leaderTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.log.Debug("leader lock held elsewhere", zap.String("job", job.Name))
		} else {
			s.log.Warn("leader lock attempt failed", zap.String("job", job.Name), zap.Error(err))
		}
		return false
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug("release leader lock", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go func() {
		tick := time.NewTicker(s.leaderTTL / 2)
		defer tick.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-tick.C:
				if err := lease.Extend(refreshCtx); err != nil {
					s.log.Warn("refresh leader lock", zap.String("job", job.Name), zap.Error(err))
				}
			}
		}
	}()

	started := time.Now()
	res, err := job.Run(ctx)
	if err != nil {
		s.log.Error("sweep failed", zap.String("job", job.Name), zap.Error(err))
		return true
	}
	s.log.Debug("sweep done",
		zap.String("job", job.Name),
		zap.Int("candidates", res.Candidates),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(started)))
	return true
}
