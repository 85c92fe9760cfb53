package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Save(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Subscription, error)
	FindByNameKey(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, nameKey string) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, includeArchived bool) ([]Subscription, error)
	// ListReminderCandidates returns active subscriptions with notifications
	// enabled whose next payment falls within [from, to].
	ListReminderCandidates(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Subscription, error)
}
