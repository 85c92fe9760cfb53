package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ? AND owner_id = ?", subscription.ID, subscription.OwnerID).
		Updates(map[string]any{
			"name":                  subscription.Name,
			"name_key":              subscription.NameKey,
			"category":              subscription.Category,
			"current_amount":        subscription.CurrentAmount,
			"billing_cycle":         subscription.BillingCycle,
			"connected_date":        subscription.ConnectedDate,
			"next_payment_date":     subscription.NextPaymentDate,
			"notify_days_before":    subscription.NotifyDaysBefore,
			"state":                 subscription.State,
			"archived_date":         subscription.ArchivedDate,
			"notifications_enabled": subscription.NotificationsEnabled,
			"auto_renewal":          subscription.AutoRenewal,
			"updated_at":            subscription.UpdatedAt,
		}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findOne(stmt.Where("owner_id = ? AND id = ?", ownerID, id))
}

func (r *repo) FindByNameKey(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, nameKey string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(db.WithContext(ctx).Where("owner_id = ? AND name_key = ?", ownerID, nameKey))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, includeArchived bool) ([]subscriptiondomain.Subscription, error) {
	stmt := db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !includeArchived {
		stmt = stmt.Where("state = ?", subscriptiondomain.StateActive)
	}

	var items []subscriptiondomain.Subscription
	err := stmt.
		Order("CASE WHEN next_payment_date IS NULL THEN 1 ELSE 0 END").
		Order("next_payment_date ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListReminderCandidates(ctx context.Context, db *gorm.DB, from, to time.Time) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("state = ? AND notifications_enabled = ?", subscriptiondomain.StateActive, true).
		Where("next_payment_date IS NOT NULL AND next_payment_date >= ? AND next_payment_date <= ?", from, to).
		Order("next_payment_date ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) findOne(stmt *gorm.DB) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	if err := stmt.First(&subscription).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}
