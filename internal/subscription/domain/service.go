package domain

import (
	"context"
	"errors"
	"time"

	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
)

// Dates travel as YYYY-MM-DD strings.
type CreateRequest struct {
	Name                 string  `json:"name"`
	Category             string  `json:"category,omitempty"`
	CurrentAmount        int64   `json:"current_amount"`
	BillingCycle         string  `json:"billing_cycle,omitempty"`
	ConnectedDate        *string `json:"connected_date,omitempty"`
	NextPaymentDate      *string `json:"next_payment_date,omitempty"`
	NotifyDaysBefore     *int    `json:"notify_days_before,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	AutoRenewal          *bool   `json:"auto_renewal,omitempty"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Name                 *string `json:"name,omitempty"`
	Category             *string `json:"category,omitempty"`
	CurrentAmount        *int64  `json:"current_amount,omitempty"`
	BillingCycle         *string `json:"billing_cycle,omitempty"`
	NextPaymentDate      *string `json:"next_payment_date,omitempty"`
	NotifyDaysBefore     *int    `json:"notify_days_before,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	AutoRenewal          *bool   `json:"auto_renewal,omitempty"`
}

type ListRequest struct {
	IncludeArchived bool
}

type Response struct {
	ID                   string   `json:"id"`
	OwnerID              string   `json:"owner_id"`
	Name                 string   `json:"name"`
	Slug                 string   `json:"slug"`
	Category             Category `json:"category"`
	CurrentAmount        int64    `json:"current_amount"`
	BillingCycle         string   `json:"billing_cycle"`
	ConnectedDate        string   `json:"connected_date"`
	NextPaymentDate      *string  `json:"next_payment_date"`
	DaysRemaining        *int     `json:"days_remaining"`
	NotifyDaysBefore     int      `json:"notify_days_before"`
	State                State    `json:"state"`
	ArchivedDate         *string  `json:"archived_date"`
	NotificationsEnabled bool     `json:"notifications_enabled"`
	AutoRenewal          bool     `json:"auto_renewal"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

type DetailResponse struct {
	Response
	PriceHistory []pricehistorydomain.Entry `json:"price_history"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (DetailResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (Response, error)
	Archive(ctx context.Context, id string) (Response, error)
	Renew(ctx context.Context, id string) (Response, error)
	Get(ctx context.Context, id string) (DetailResponse, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	PriceHistory(ctx context.Context, id string, order pricehistorydomain.Order) ([]pricehistorydomain.Entry, error)
}

// Error categories. Specific causes wrap one of these.
var (
	ErrNotFound           = errors.New("subscription_not_found")
	ErrNameConflict       = errors.New("subscription_name_conflict")
	ErrInvalidDate        = errors.New("invalid_date")
	ErrInvalidRange       = errors.New("invalid_range")
	ErrInvalidState       = errors.New("invalid_state")
	ErrPersistenceFailure = errors.New("persistence_failure")
)

var (
	ErrInvalidOwner    = errors.New("invalid_owner")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCategory = errors.New("invalid_category")
)

// DaysUntil counts whole calendar days from today to date.
func DaysUntil(today, date time.Time) int {
	return int(date.Sub(today).Hours() / 24)
}
