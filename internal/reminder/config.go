package reminder

import (
	"time"

	"github.com/smallbiznis/subtrack/internal/config"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
)

const (
	jobName = "payment_reminders"
	lockKey = "subtrack:lock:payment_reminders:"
)

// settingsSource is satisfied by config.ReminderConfigHolder.
type settingsSource interface {
	Get() config.ReminderSettings
}

func runSettings(src settingsSource) config.ReminderSettings {
	defaults := config.DefaultReminderSettings()
	if src == nil {
		return defaults
	}
	cfg := src.Get()
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaults.RunTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = defaults.CronSpec
	}
	return cfg
}

// candidateWindow bounds the next payment dates that can trigger on today.
func candidateWindow(today time.Time) (time.Time, time.Time) {
	return today.AddDate(0, 0, subscriptiondomain.MinNotifyDaysBefore),
		today.AddDate(0, 0, subscriptiondomain.MaxNotifyDaysBefore)
}
