package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReminderSettings tunes the daily payment reminder sweep.
type ReminderSettings struct {
	Enabled    bool          `mapstructure:"enabled"`
	CronSpec   string        `mapstructure:"cronSpec"`
	RunTimeout time.Duration `mapstructure:"runTimeout"`
	LockTTL    time.Duration `mapstructure:"lockTTL"`
}

func DefaultReminderSettings() ReminderSettings {
	return ReminderSettings{
		Enabled:    true,
		CronSpec:   "0 9 * * *",
		RunTimeout: 5 * time.Minute,
		LockTTL:    10 * time.Minute,
	}
}

// ReminderConfigHolder serves the current reminder settings and swaps them
// when reminder.yml changes on disk.
type ReminderConfigHolder struct {
	current atomic.Value // holds ReminderSettings
}

// NewReminderConfigHolder reads reminder.yml from the usual config paths,
// falling back to defaults when no file exists.
func NewReminderConfigHolder(log *zap.Logger) (*ReminderConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("reminder")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subtrack")
	v.AddConfigPath(".")
	return newReminderConfigHolder(v, log)
}

func newReminderConfigHolder(v *viper.Viper, log *zap.Logger) (*ReminderConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("reminder.config")

	defaults := DefaultReminderSettings()
	v.SetDefault("reminder.enabled", defaults.Enabled)
	v.SetDefault("reminder.cronSpec", defaults.CronSpec)
	v.SetDefault("reminder.runTimeout", defaults.RunTimeout)
	v.SetDefault("reminder.lockTTL", defaults.LockTTL)

	v.SetEnvPrefix("SUBTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeReminderSettings(v)
	if err != nil {
		return nil, err
	}

	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeReminderSettings(v)
			if err != nil {
				log.Warn("invalid reminder config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("reminder config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticReminderConfigHolder pins the settings; used by tests and one-off commands.
func NewStaticReminderConfigHolder(cfg ReminderSettings) *ReminderConfigHolder {
	holder := &ReminderConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ReminderConfigHolder) Get() ReminderSettings {
	if h == nil {
		return DefaultReminderSettings()
	}
	return h.current.Load().(ReminderSettings)
}

func decodeReminderSettings(v *viper.Viper) (ReminderSettings, error) {
	var cfg ReminderSettings
	if err := v.UnmarshalKey("reminder", &cfg); err != nil {
		return ReminderSettings{}, err
	}
	if err := validateReminderSettings(cfg); err != nil {
		return ReminderSettings{}, err
	}
	return cfg, nil
}

func validateReminderSettings(cfg ReminderSettings) error {
	if strings.TrimSpace(cfg.CronSpec) == "" {
		return errors.New("reminder.cronSpec cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.CronSpec); err != nil {
		return errors.New("reminder.cronSpec is not a valid cron expression")
	}
	if cfg.RunTimeout <= 0 {
		return errors.New("reminder.runTimeout must be positive")
	}
	if cfg.LockTTL < cfg.RunTimeout {
		return errors.New("reminder.lockTTL must be at least reminder.runTimeout")
	}
	return nil
}
