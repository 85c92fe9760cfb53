package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order controls ledger ordering by start date.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder defaults to ascending for anything but "desc".
func ParseOrder(raw string) Order {
	if strings.EqualFold(strings.TrimSpace(raw), string(OrderDesc)) {
		return OrderDesc
	}
	return OrderAsc
}

// Service maintains the ledger. Mutating calls take the caller's transaction
// so the ledger commits together with the subscription row.
type Service interface {
	AppendOrOpen(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, amount int64, today time.Time) (*Entry, error)
	ReconcilePriceChange(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, newAmount int64, today time.Time) (*Entry, error)
	List(ctx context.Context, subscriptionID snowflake.ID, order Order) ([]Entry, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSubscription = errors.New("invalid_subscription")
)
