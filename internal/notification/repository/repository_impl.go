package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, notification *notificationdomain.Notification) error {
	return db.WithContext(ctx).Create(notification).Error
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, notification *notificationdomain.Notification) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notification)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ExistsReminderForDay(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, day time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("subscription_id = ? AND type = ?", subscriptionID, notificationdomain.TypePaymentReminder).
		Where("reminder_day = ? OR (created_at >= ? AND created_at < ?)", day, day, day.AddDate(0, 0, 1)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*notificationdomain.Notification, error) {
	var notification notificationdomain.Notification
	err := db.WithContext(ctx).
		Where("owner_id = ? AND id = ?", ownerID, id).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter notificationdomain.ListFilter) ([]notificationdomain.Notification, error) {
	stmt := db.WithContext(ctx).Where("owner_id = ?", filter.OwnerID)
	if filter.UnreadOnly {
		stmt = stmt.Where("is_read = ?", false)
	}

	var items []notificationdomain.Notification
	err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Updates(map[string]any{
			"is_read": true,
			"sent_at": gorm.Expr("COALESCE(sent_at, ?)", at),
		}).Error
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Updates(map[string]any{
			"is_read": true,
			"sent_at": gorm.Expr("COALESCE(sent_at, ?)", at),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("owner_id = ? AND is_read = ?", ownerID, false).
		Count(&count).Error
	return count, err
}
