package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger decides when the scheduler fires. fire receives the scheduled time.
type Trigger interface {
	Start(fire func(scheduled time.Time)) error
	Stop(ctx context.Context) error
}

var ErrTriggerStarted = errors.New("trigger_already_started")

// CronTrigger fires on a standard five-field cron expression in a fixed location.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location

	mu   sync.Mutex
	cron *cron.Cron
}

func NewCronTrigger(spec string, loc *time.Location) (*CronTrigger, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronTrigger{spec: spec, schedule: schedule, loc: loc}, nil
}

func (t *CronTrigger) Start(fire func(scheduled time.Time)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return ErrTriggerStarted
	}

	c := cron.New(
		cron.WithLocation(t.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	var id cron.EntryID
	id = c.Schedule(t.schedule, cron.FuncJob(func() {
		// Prev holds the planned time of the run in progress.
		fire(c.Entry(id).Prev)
	}))
	c.Start()
	t.cron = c
	return nil
}

func (t *CronTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next fire time after now.
func (t *CronTrigger) Next(now time.Time) time.Time {
	return t.schedule.Next(now.In(t.loc))
}

// ManualTrigger fires only when Fire is called.
type ManualTrigger struct {
	mu   sync.Mutex
	fire func(time.Time)
}

func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{}
}

func (t *ManualTrigger) Start(fire func(scheduled time.Time)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fire != nil {
		return ErrTriggerStarted
	}
	t.fire = fire
	return nil
}

func (t *ManualTrigger) Stop(context.Context) error {
	t.mu.Lock()
	t.fire = nil
	t.mu.Unlock()
	return nil
}

// Fire runs the scheduler synchronously. It reports false when stopped.
func (t *ManualTrigger) Fire(at time.Time) bool {
	t.mu.Lock()
	fire := t.fire
	t.mu.Unlock()
	if fire == nil {
		return false
	}
	fire(at)
	return true
}
