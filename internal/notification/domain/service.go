package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/subtrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRequest struct {
	UnreadOnly bool
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"notifications"`
}

type Service interface {
	// Lifecycle events. tx is the caller's unit of work.
	NotifySubscriptionCreated(ctx context.Context, tx *gorm.DB, subject Subject, amount int64, nextPayment *time.Time) (*Notification, error)
	NotifyPriceChanged(ctx context.Context, tx *gorm.DB, subject Subject, oldAmount, newAmount int64) (*Notification, error)
	NotifyPaymentDateChanged(ctx context.Context, tx *gorm.DB, subject Subject, oldDate, newDate time.Time) (*Notification, error)
	NotifyAutoRenewalChanged(ctx context.Context, tx *gorm.DB, subject Subject, enabled bool) (*Notification, error)

	// RemindPayment creates at most one payment reminder per subscription and day.
	RemindPayment(ctx context.Context, tx *gorm.DB, subject Subject, paymentDate time.Time, amount int64, today time.Time) (bool, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	MarkRead(ctx context.Context, id string) (Notification, error)
	MarkAllRead(ctx context.Context) (int64, error)
	UnreadCount(ctx context.Context) (int64, error)
}

var (
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidNotification = errors.New("invalid_notification")
	ErrInvalidSubject      = errors.New("invalid_subject")
	ErrNotFound            = errors.New("notification_not_found")
)
