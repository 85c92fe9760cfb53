// Package reminder creates payment reminders for subscriptions whose
// trigger day is today and runs that sweep on a schedule.
package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/subtrack/internal/clock"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	obslogger "github.com/smallbiznis/subtrack/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/subtrack/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_reminder_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Repo            subscriptiondomain.Repository
	NotificationSvc notificationdomain.Service
	Metrics         *obsmetrics.Metrics `optional:"true"`
}

// SweepResult summarizes one reminder sweep.
type SweepResult struct {
	Day        time.Time `json:"day"`
	Candidates int       `json:"candidates"`
	Due        int       `json:"due"`
	Created    int       `json:"created"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	repo            subscriptiondomain.Repository
	notificationSvc notificationdomain.Service
	metrics         *obsmetrics.Metrics
}

func NewService(p Params) (*Service, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.NotificationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("reminder.service"),
		clock:           p.Clock,
		repo:            p.Repo,
		notificationSvc: p.NotificationSvc,
		metrics:         p.Metrics,
	}, nil
}

// Sweep creates today's payment reminders and returns how many were created.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	result, err := s.SweepDay(ctx, s.clock.Today())
	return result.Created, err
}

// SweepDay runs the sweep as if today were the given calendar day. A failing
// subscription is logged and counted without stopping the sweep.
func (s *Service) SweepDay(ctx context.Context, today time.Time) (SweepResult, error) {
	today = clock.DateOf(today)
	result := SweepResult{Day: today}
	log := obslogger.WithContext(ctx, s.log).With(zap.String("day", today.Format(time.DateOnly)))
	schedMetrics := obsmetrics.Scheduler()

	from, to := candidateWindow(today)
	candidates, err := s.repo.ListReminderCandidates(ctx, s.db, from, to)
	if err != nil {
		s.metrics.RecordReminderSweep(ctx, "failed", 0)
		return result, err
	}
	result.Candidates = len(candidates)
	schedMetrics.AddCandidates(jobName, len(candidates))

	for _, sub := range candidates {
		if err := EnsureReminderDue(sub, today); err != nil {
			continue
		}
		if ctx.Err() != nil {
			s.metrics.RecordReminderSweep(ctx, "interrupted", result.Created)
			return result, ctx.Err()
		}
		result.Due++

		created, err := s.remind(ctx, sub, today)
		switch {
		case err != nil:
			result.Failed++
			schedMetrics.IncReminder(obsmetrics.ReminderOutcomeFailed)
			log.Warn("payment reminder failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("owner_id", sub.OwnerID.String()),
				zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
				zap.Error(err),
			)
		case created:
			result.Created++
			schedMetrics.IncReminder(obsmetrics.ReminderOutcomeCreated)
			s.metrics.RecordNotification(ctx, string(notificationdomain.TypePaymentReminder))
		default:
			result.Duplicates++
			schedMetrics.IncReminder(obsmetrics.ReminderOutcomeDuplicate)
		}
	}

	outcome := "success"
	if result.Failed > 0 {
		outcome = "partial"
	}
	s.metrics.RecordReminderSweep(ctx, outcome, result.Created)
	log.Info("reminder sweep finished",
		zap.Int("candidates", result.Candidates),
		zap.Int("due", result.Due),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) remind(ctx context.Context, sub subscriptiondomain.Subscription, today time.Time) (bool, error) {
	subject := notificationdomain.Subject{
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		Name:           sub.Name,
	}

	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.notificationSvc.RemindPayment(ctx, tx, subject, *sub.NextPaymentDate, sub.CurrentAmount, today)
		return err
	})
	return created, err
}
