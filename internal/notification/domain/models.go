// Package domain contains notification records produced by subscription
// lifecycle events and the daily reminder sweep.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Type is the closed set of notification kinds.
type Type string

const (
	TypeSubscriptionCreated Type = "subscription_created"
	TypePriceChanged        Type = "price_changed"
	TypePaymentDateChanged  Type = "payment_date_changed"
	TypePaymentReminder     Type = "payment_reminder"
	TypeAutoRenewalChanged  Type = "auto_renewal_changed"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSubscriptionCreated,
		TypePriceChanged,
		TypePaymentDateChanged,
		TypePaymentReminder,
		TypeAutoRenewalChanged:
		return true
	default:
		return false
	}
}

// Notification is a user-facing record. ReminderDay is only set for payment
// reminders and, together with subscription and type, is unique.
type Notification struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID        snowflake.ID      `gorm:"not null;index:idx_notifications_owner_created,priority:1" json:"owner_id"`
	SubscriptionID snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_notifications_reminder_day,priority:1" json:"subscription_id"`
	Type           Type              `gorm:"type:varchar(32);not null;uniqueIndex:ux_notifications_reminder_day,priority:2" json:"type"`
	Title          string            `gorm:"type:text;not null" json:"title"`
	Message        string            `gorm:"type:text;not null" json:"message"`
	ScheduledDate  time.Time         `gorm:"not null" json:"scheduled_date"`
	SentAt         *time.Time        `json:"sent_at"`
	Read           bool              `gorm:"column:is_read;not null;default:false" json:"read"`
	ActionURL      *string           `gorm:"type:text" json:"action_url"`
	ReminderDay    *time.Time        `gorm:"uniqueIndex:ux_notifications_reminder_day,priority:3" json:"-"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index:idx_notifications_owner_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// AfterFind pins loaded dates to UTC so reminder days compare by calendar day.
func (n *Notification) AfterFind(*gorm.DB) error {
	n.ScheduledDate = n.ScheduledDate.UTC()
	if n.SentAt != nil {
		sent := n.SentAt.UTC()
		n.SentAt = &sent
	}
	if n.ReminderDay != nil {
		day := n.ReminderDay.UTC()
		n.ReminderDay = &day
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return nil
}

// Subject identifies the subscription a notification is about.
type Subject struct {
	OwnerID        snowflake.ID
	SubscriptionID snowflake.ID
	Name           string
}
