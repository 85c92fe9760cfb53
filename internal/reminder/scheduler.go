package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
	obslogger "github.com/smallbiznis/subtrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/smallbiznis/subtrack/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrSchedulerStarted = errors.New("scheduler_already_started")

type sweepLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type SchedulerParams struct {
	fx.In

	Service  *Service
	Trigger  Trigger
	Clock    clock.Clock
	Log      *zap.Logger
	Locker   *Locker                      `optional:"true"`
	Settings *config.ReminderConfigHolder `optional:"true"`
}

// Scheduler owns the trigger that runs the daily reminder sweep.
type Scheduler struct {
	svc      *Service
	trigger  Trigger
	clock    clock.Clock
	log      *zap.Logger
	locker   sweepLock
	settings settingsSource

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
}

func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if p.Service == nil || p.Trigger == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		svc:      p.Service,
		trigger:  p.Trigger,
		clock:    p.Clock,
		log:      p.Log.Named("reminder.scheduler").With(zap.String("component", "scheduler")),
		locker:   p.Locker,
		settings: p.Settings,
	}, nil
}

// Start hands the sweep to the trigger. Runs stop when Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := s.trigger.Start(s.fire); err != nil {
		cancel()
		return err
	}
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true
	s.log.Info("reminder scheduler started")
	return nil
}

// Stop stops the trigger, cancels an in-flight sweep and waits for it.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	err := s.trigger.Stop(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	s.log.Info("reminder scheduler stopped")
	return err
}

func (s *Scheduler) fire(scheduled time.Time) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !scheduled.IsZero() {
		obsmetrics.Scheduler().ObserveTriggerLag(s.clock.Now().Sub(scheduled))
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Warn("reminder sweep failed", zap.Error(err))
	}
}

// RunOnce sweeps today under the distributed lock, if one is configured.
func (s *Scheduler) RunOnce(parent context.Context) (SweepResult, error) {
	settings := runSettings(s.settings)
	today := s.clock.Today()

	var result SweepResult
	err := s.runJob(parent, jobName, settings.RunTimeout, func(ctx context.Context) error {
		key := lockKey + today.Format(time.DateOnly)
		token, acquired, err := s.locker.TryLock(ctx, key, settings.LockTTL)
		if err != nil {
			// The unique reminder index still prevents duplicates.
			s.logger(ctx).Warn("reminder lock unavailable, sweeping without it", zap.Error(err))
			acquired = true
		}
		if !acquired {
			obsmetrics.Scheduler().IncJobSkipped(jobName)
			s.logger(ctx).Info("reminder sweep skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, key, token); err != nil {
				s.logger(ctx).Warn("reminder lock release failed", zap.Error(err))
			}
		}()

		result, err = s.svc.SweepDay(ctx, today)
		return err
	})
	return result, err
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)
	log.Debug("job started")

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err == nil {
		schedMetrics.SetJobSuccess(name, s.clock.Now())
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
