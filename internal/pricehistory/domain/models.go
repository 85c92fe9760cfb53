// Package domain contains the price ledger model for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Entry is one price period of a subscription. EndDate nil marks the open period.
type Entry struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID `gorm:"not null;index:idx_price_history_subscription_start,priority:1" json:"subscription_id"`
	Amount         int64        `gorm:"not null" json:"amount"`
	StartDate      time.Time    `gorm:"not null;index:idx_price_history_subscription_start,priority:2" json:"start_date"`
	EndDate        *time.Time   `json:"end_date"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "subscription_price_history" }

// AfterFind pins loaded dates to UTC.
func (e *Entry) AfterFind(*gorm.DB) error {
	e.StartDate = e.StartDate.UTC()
	if e.EndDate != nil {
		end := e.EndDate.UTC()
		e.EndDate = &end
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return nil
}

// IsOpen reports whether the entry is the currently active period.
func (e Entry) IsOpen() bool { return e.EndDate == nil }
