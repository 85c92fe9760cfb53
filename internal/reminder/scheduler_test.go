package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	obsmetrics "github.com/smallbiznis/subtrack/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLock struct {
	held     bool
	err      error
	released []string
}

func (l *fakeLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *fakeLock) Release(ctx context.Context, key, token string) error {
	l.released = append(l.released, key)
	return nil
}

func newTestScheduler(t *testing.T, f *fixture, trigger Trigger) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(SchedulerParams{
		Service:  f.svc,
		Trigger:  trigger,
		Clock:    f.clock,
		Log:      zap.NewNop(),
		Settings: config.NewStaticReminderConfigHolder(config.DefaultReminderSettings()),
	})
	require.NoError(t, err)
	return sched
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	s := &Scheduler{log: zap.NewNop(), clock: f.clock}

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{"service": "subtrack", "env": "test", "job": "timeout_job"}
	if got := getCounterValue(t, f.reg, "subtrack_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}
	errorLabels := map[string]string{
		"service": "subtrack",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, f.reg, "subtrack_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsFailures(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	s := &Scheduler{log: zap.NewNop(), clock: f.clock}

	boom := errors.New("boom")
	err := s.runJob(context.Background(), jobName, time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), jobName)
}

func TestManualTriggerRunsSweepUntilStopped(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	f.addSubscription(t, 1, "Netflix", clock.Date(2024, time.March, 4), 3)

	trigger := NewManualTrigger()
	sched := newTestScheduler(t, f, trigger)

	require.NoError(t, sched.Start(context.Background()))
	assert.ErrorIs(t, sched.Start(context.Background()), ErrSchedulerStarted)

	assert.True(t, trigger.Fire(f.clock.Now()))
	assert.True(t, trigger.Fire(f.clock.Now()))
	assert.Len(t, f.reminders(t), 1)

	labels := map[string]string{"service": "subtrack", "env": "test", "job": jobName}
	if got := getCounterValue(t, f.reg, "subtrack_scheduler_job_runs_total", labels); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}

	require.NoError(t, sched.Stop(context.Background()))
	assert.False(t, trigger.Fire(f.clock.Now()))
	require.NoError(t, sched.Stop(context.Background()))
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	f.addSubscription(t, 1, "Netflix", clock.Date(2024, time.March, 4), 3)

	sched := newTestScheduler(t, f, NewManualTrigger())
	sched.locker = &fakeLock{held: true}

	result, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Empty(t, f.reminders(t))

	labels := map[string]string{"service": "subtrack", "env": "test", "job": jobName}
	if got := getCounterValue(t, f.reg, "subtrack_scheduler_job_skipped_total", labels); got != 1 {
		t.Fatalf("expected 1 skipped run, got %v", got)
	}
}

func TestRunOnceSweepsWithoutLockWhenRedisFails(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	f.addSubscription(t, 1, "Netflix", clock.Date(2024, time.March, 4), 3)

	sched := newTestScheduler(t, f, NewManualTrigger())
	sched.locker = &fakeLock{err: errors.New("connection refused")}

	result, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}

func TestRunOnceReleasesLockForTheDay(t *testing.T) {
	f := setupFixture(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC))
	lock := &fakeLock{}
	sched := newTestScheduler(t, f, NewManualTrigger())
	sched.locker = lock

	_, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{lockKey + "2024-03-01"}, lock.released)
}

func TestNilLockerAlwaysGrants(t *testing.T) {
	var l *Locker
	token, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, l.Release(context.Background(), "k", token))
	assert.Nil(t, NewLocker(nil))
}

func TestCronTrigger(t *testing.T) {
	_, err := NewCronTrigger("every day", time.UTC)
	assert.Error(t, err)

	wib := time.FixedZone("WIB", 7*3600)
	trigger, err := NewCronTrigger("0 9 * * *", wib)
	require.NoError(t, err)

	next := trigger.Next(time.Date(2024, time.March, 1, 3, 0, 0, 0, time.UTC))
	assert.True(t, next.Equal(time.Date(2024, time.March, 2, 2, 0, 0, 0, time.UTC)), "got %s", next)

	require.NoError(t, trigger.Start(func(time.Time) {}))
	assert.ErrorIs(t, trigger.Start(func(time.Time) {}), ErrTriggerStarted)
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}
