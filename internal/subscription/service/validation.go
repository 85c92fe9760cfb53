package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/subtrack/internal/billingcycle/domain"
	"github.com/smallbiznis/subtrack/internal/clock"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
)

const maxNameLength = 255

func (s *Service) buildSubscription(ownerID snowflake.ID, req subscriptiondomain.CreateRequest, today time.Time) (*subscriptiondomain.Subscription, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	cycle, err := parseCycle(req.BillingCycle)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(req.CurrentAmount); err != nil {
		return nil, err
	}

	notifyDays := subscriptiondomain.DefaultNotifyDaysBefore
	if req.NotifyDaysBefore != nil {
		notifyDays = *req.NotifyDaysBefore
	}
	if err := validateNotifyDays(notifyDays); err != nil {
		return nil, err
	}

	connected := today
	if req.ConnectedDate != nil {
		parsed, err := parseDate("connected_date", *req.ConnectedDate)
		if err != nil {
			return nil, err
		}
		if parsed.After(today) {
			return nil, fmt.Errorf("%w: connected_date is in the future", subscriptiondomain.ErrInvalidDate)
		}
		connected = parsed
	}

	var nextPayment time.Time
	if req.NextPaymentDate != nil {
		parsed, err := parseDate("next_payment_date", *req.NextPaymentDate)
		if err != nil {
			return nil, err
		}
		if parsed.Before(today) {
			return nil, fmt.Errorf("%w: next_payment_date is in the past", subscriptiondomain.ErrInvalidDate)
		}
		nextPayment = parsed
	} else {
		nextPayment, err = billingcycledomain.NextDate(connected, cycle)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
		}
	}

	notificationsEnabled := true
	if req.NotificationsEnabled != nil {
		notificationsEnabled = *req.NotificationsEnabled
	}
	autoRenewal := false
	if req.AutoRenewal != nil {
		autoRenewal = *req.AutoRenewal
	}

	now := s.clock.Now()
	return &subscriptiondomain.Subscription{
		ID:                   s.genID.Generate(),
		OwnerID:              ownerID,
		Name:                 name,
		NameKey:              subscriptiondomain.NameKey(name),
		Category:             category,
		CurrentAmount:        req.CurrentAmount,
		BillingCycle:         cycle,
		ConnectedDate:        connected,
		NextPaymentDate:      &nextPayment,
		NotifyDaysBefore:     notifyDays,
		State:                subscriptiondomain.StateActive,
		NotificationsEnabled: notificationsEnabled,
		AutoRenewal:          autoRenewal,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// applyPatch returns the patched copy. Nothing is written when it fails.
func applyPatch(sub subscriptiondomain.Subscription, req subscriptiondomain.UpdateRequest, today time.Time) (subscriptiondomain.Subscription, error) {
	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return sub, err
		}
		sub.Name = name
		sub.NameKey = subscriptiondomain.NameKey(name)
	}
	if req.Category != nil {
		category, err := parseCategory(*req.Category)
		if err != nil {
			return sub, err
		}
		sub.Category = category
	}
	if req.CurrentAmount != nil {
		if err := validateAmount(*req.CurrentAmount); err != nil {
			return sub, err
		}
		sub.CurrentAmount = *req.CurrentAmount
	}
	if req.NotifyDaysBefore != nil {
		if err := validateNotifyDays(*req.NotifyDaysBefore); err != nil {
			return sub, err
		}
		sub.NotifyDaysBefore = *req.NotifyDaysBefore
	}
	if req.NotificationsEnabled != nil {
		sub.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.AutoRenewal != nil {
		sub.AutoRenewal = *req.AutoRenewal
	}

	cycleChanged := false
	if req.BillingCycle != nil {
		cycle, err := parseCycle(*req.BillingCycle)
		if err != nil {
			return sub, err
		}
		cycleChanged = cycle != sub.BillingCycle
		sub.BillingCycle = cycle
	}

	switch {
	case req.NextPaymentDate != nil:
		parsed, err := parseDate("next_payment_date", *req.NextPaymentDate)
		if err != nil {
			return sub, err
		}
		if parsed.Before(today) {
			return sub, fmt.Errorf("%w: next_payment_date is in the past", subscriptiondomain.ErrInvalidDate)
		}
		sub.NextPaymentDate = &parsed
	case cycleChanged && sub.NextPaymentDate != nil:
		// Keep the existing cadence point as the anchor.
		next, err := billingcycledomain.NextDate(*sub.NextPaymentDate, sub.BillingCycle)
		if err != nil {
			return sub, fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
		}
		sub.NextPaymentDate = &next
	}

	return sub, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxNameLength {
		return "", fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, subscriptiondomain.ErrInvalidName)
	}
	return name, nil
}

func parseCategory(raw string) (subscriptiondomain.Category, error) {
	category, err := subscriptiondomain.ParseCategory(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
	}
	return category, nil
}

func parseCycle(raw string) (billingcycledomain.Cycle, error) {
	if strings.TrimSpace(raw) == "" {
		return billingcycledomain.CycleMonthly, nil
	}
	cycle, err := billingcycledomain.ParseCycle(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", subscriptiondomain.ErrInvalidRange, err)
	}
	return cycle, nil
}

func validateAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: current_amount must not be negative", subscriptiondomain.ErrInvalidRange)
	}
	return nil
}

func validateNotifyDays(days int) error {
	if days < subscriptiondomain.MinNotifyDaysBefore || days > subscriptiondomain.MaxNotifyDaysBefore {
		return fmt.Errorf("%w: notify_days_before must be between %d and %d",
			subscriptiondomain.ErrInvalidRange,
			subscriptiondomain.MinNotifyDaysBefore,
			subscriptiondomain.MaxNotifyDaysBefore,
		)
	}
	return nil
}

func parseDate(field, raw string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", subscriptiondomain.ErrInvalidDate, field)
	}
	return clock.DateOf(parsed), nil
}

func toResponse(sub *subscriptiondomain.Subscription, today time.Time) subscriptiondomain.Response {
	resp := subscriptiondomain.Response{
		ID:                   sub.ID.String(),
		OwnerID:              sub.OwnerID.String(),
		Name:                 sub.Name,
		Slug:                 subscriptiondomain.DisplaySlug(sub.Name),
		Category:             sub.Category,
		CurrentAmount:        sub.CurrentAmount,
		BillingCycle:         string(sub.BillingCycle),
		ConnectedDate:        sub.ConnectedDate.Format(time.DateOnly),
		NotifyDaysBefore:     sub.NotifyDaysBefore,
		State:                sub.State,
		NotificationsEnabled: sub.NotificationsEnabled,
		AutoRenewal:          sub.AutoRenewal,
		CreatedAt:            sub.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if sub.NextPaymentDate != nil {
		next := sub.NextPaymentDate.Format(time.DateOnly)
		resp.NextPaymentDate = &next
		if !sub.IsArchived() {
			days := subscriptiondomain.DaysUntil(today, clock.DateOf(*sub.NextPaymentDate))
			resp.DaysRemaining = &days
		}
	}
	if sub.ArchivedDate != nil {
		archived := sub.ArchivedDate.Format(time.DateOnly)
		resp.ArchivedDate = &archived
	}
	return resp
}
