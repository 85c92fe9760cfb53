// Package domain holds calendar arithmetic for subscription billing cycles.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cycle is the renewal cadence of a subscription.
type Cycle string

const (
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
)

var ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")

// ParseCycle is the only way to turn free text into a Cycle.
// The legacy spelling "mounthly" is accepted for imported data.
func ParseCycle(raw string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(CycleMonthly), "mounthly":
		return CycleMonthly, nil
	case string(CycleQuarterly):
		return CycleQuarterly, nil
	case string(CycleYearly):
		return CycleYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBillingCycle, raw)
	}
}

func (c Cycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	default:
		return false
	}
}

// Months returns the number of calendar months in one cycle.
func (c Cycle) Months() (int, error) {
	switch c {
	case CycleMonthly:
		return 1, nil
	case CycleQuarterly:
		return 3, nil
	case CycleYearly:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, string(c))
	}
}

// NextDate advances anchor by one cycle. Day-of-month overflow is clipped to
// the last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
// Only the calendar date of anchor is used; the result is UTC midnight.
func NextDate(anchor time.Time, cycle Cycle) (time.Time, error) {
	months, err := cycle.Months()
	if err != nil {
		return time.Time{}, err
	}
	return addMonthsSafe(anchor, months), nil
}

func addMonthsSafe(t time.Time, months int) time.Time {
	year, month, day := t.UTC().Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)

	// day 0 of the following month is the last day of target.
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}
