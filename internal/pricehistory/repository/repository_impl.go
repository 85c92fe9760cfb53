package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricehistorydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *pricehistorydomain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*pricehistorydomain.Entry, error) {
	var entry pricehistorydomain.Entry
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("start_date DESC").
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) FindOpen(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*pricehistorydomain.Entry, error) {
	var entry pricehistorydomain.Entry
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND end_date IS NULL", subscriptionID).
		Order("start_date DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time) error {
	return db.WithContext(ctx).
		Model(&pricehistorydomain.Entry{}).
		Where("id = ? AND end_date IS NULL", id).
		Update("end_date", endDate).Error
}

func (r *repo) UpdateAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, createdAt time.Time) error {
	return db.WithContext(ctx).
		Model(&pricehistorydomain.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"amount":     amount,
			"created_at": createdAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&pricehistorydomain.Entry{}).Error
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, order pricehistorydomain.Order) ([]pricehistorydomain.Entry, error) {
	stmt := db.WithContext(ctx).Where("subscription_id = ?", subscriptionID)
	if order == pricehistorydomain.OrderDesc {
		stmt = stmt.Order("start_date DESC").Order("created_at DESC").Order("id DESC")
	} else {
		stmt = stmt.Order("start_date ASC").Order("created_at ASC").Order("id ASC")
	}

	var entries []pricehistorydomain.Entry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
