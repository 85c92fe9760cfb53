package reminder

import (
	"errors"
	"time"

	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
)

var (
	ErrSubscriptionArchived = errors.New("subscription_archived")
	ErrNotificationsOff     = errors.New("subscription_notifications_disabled")
	ErrNoNextPayment        = errors.New("subscription_missing_next_payment")
	ErrNotDue               = errors.New("reminder_not_due")
)

// EnsureReminderDue reports whether a payment reminder is due for the
// subscription on today. Missed trigger days are never due later.
func EnsureReminderDue(sub subscriptiondomain.Subscription, today time.Time) error {
	if sub.IsArchived() {
		return ErrSubscriptionArchived
	}
	if !sub.NotificationsEnabled {
		return ErrNotificationsOff
	}
	trigger, ok := sub.TriggerDate()
	if !ok {
		return ErrNoNextPayment
	}
	if !trigger.Equal(today) {
		return ErrNotDue
	}
	return nil
}
