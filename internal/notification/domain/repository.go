package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OwnerID    snowflake.ID
	UnreadOnly bool
	Limit      int
	Offset     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) error
	// InsertIfAbsent skips the row when the reminder dedup key already exists.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, notification *Notification) (bool, error)
	ExistsReminderForDay(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, day time.Time) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Notification, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID, at time.Time) error
	MarkAllRead(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (int64, error)
}
