package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	FindLatest(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Entry, error)
	FindOpen(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Entry, error)
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time) error
	UpdateAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, createdAt time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, order Order) ([]Entry, error)
}
