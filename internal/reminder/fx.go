package reminder

import (
	"context"

	"github.com/smallbiznis/subtrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reminder",
	fx.Provide(NewService),
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(ProvideTrigger),
	fx.Provide(NewScheduler),
)

// Lifecycle starts the scheduler with the application. Commands that only
// need a single sweep leave it out.
var Lifecycle = fx.Invoke(RegisterScheduler)

// ProvideTrigger builds the cron trigger from the reminder settings in the
// configured timezone. Changing the cron expression requires a restart.
func ProvideTrigger(cfg config.Config, holder *config.ReminderConfigHolder) (Trigger, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return NewCronTrigger(runSettings(holder).CronSpec, loc)
}

func RegisterScheduler(lc fx.Lifecycle, cfg config.Config, holder *config.ReminderConfigHolder, sched *Scheduler, log *zap.Logger) {
	if !cfg.SchedulerEnabled || !holder.Get().Enabled {
		log.Info("reminder scheduler disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
