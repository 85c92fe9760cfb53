// Package domain contains the subscription aggregate and its lifecycle rules.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/subtrack/internal/billingcycle/domain"
	"gorm.io/gorm"
)

// State is the lifecycle state of a subscription. Archived is terminal.
type State string

const (
	StateActive   State = "ACTIVE"
	StateArchived State = "ARCHIVED"
)

type Category string

const (
	CategoryMusic     Category = "music"
	CategoryVideo     Category = "video"
	CategoryBooks     Category = "books"
	CategoryGames     Category = "games"
	CategoryEducation Category = "education"
	CategorySocial    Category = "social"
	CategoryOther     Category = "other"
)

// ParseCategory maps free text to a category. Empty input is CategoryOther.
func ParseCategory(raw string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case "":
		return CategoryOther, nil
	case CategoryMusic, CategoryVideo, CategoryBooks, CategoryGames,
		CategoryEducation, CategorySocial, CategoryOther:
		return c, nil
	default:
		return "", ErrInvalidCategory
	}
}

const (
	DefaultNotifyDaysBefore = 3
	MinNotifyDaysBefore     = 1
	MaxNotifyDaysBefore     = 30
)

// Subscription is a recurring payment tracked for an owner.
type Subscription struct {
	ID                   snowflake.ID             `gorm:"primaryKey"`
	OwnerID              snowflake.ID             `gorm:"not null;uniqueIndex:ux_subscriptions_owner_name_key,priority:1;index:idx_subscriptions_owner_next_payment,priority:1"`
	Name                 string                   `gorm:"type:varchar(255);not null"`
	NameKey              string                   `gorm:"type:varchar(255);not null;uniqueIndex:ux_subscriptions_owner_name_key,priority:2"`
	Category             Category                 `gorm:"type:varchar(32);not null;default:'other'"`
	CurrentAmount        int64                    `gorm:"not null;default:0"`
	BillingCycle         billingcycledomain.Cycle `gorm:"type:varchar(16);not null"`
	ConnectedDate        time.Time                `gorm:"not null"`
	NextPaymentDate      *time.Time               `gorm:"index:idx_subscriptions_owner_next_payment,priority:2"`
	NotifyDaysBefore     int                      `gorm:"not null;default:3"`
	State                State                    `gorm:"type:varchar(16);not null;index"`
	ArchivedDate         *time.Time               `gorm:""`
	NotificationsEnabled bool                     `gorm:"not null"`
	AutoRenewal          bool                     `gorm:"not null;default:false"`
	CreatedAt            time.Time                `gorm:"not null"`
	UpdatedAt            time.Time                `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// AfterFind pins loaded timestamps to UTC. Drivers may scan TIMESTAMPTZ into
// the process zone, which would shift the stored calendar dates.
func (s *Subscription) AfterFind(*gorm.DB) error {
	s.ConnectedDate = s.ConnectedDate.UTC()
	s.NextPaymentDate = utcPtr(s.NextPaymentDate)
	s.ArchivedDate = utcPtr(s.ArchivedDate)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s Subscription) IsArchived() bool {
	return s.State == StateArchived
}

// TriggerDate is the day a payment reminder is due, if any.
func (s Subscription) TriggerDate() (time.Time, bool) {
	if s.NextPaymentDate == nil {
		return time.Time{}, false
	}
	return s.NextPaymentDate.AddDate(0, 0, -s.NotifyDaysBefore), true
}
