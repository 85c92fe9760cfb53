package domain

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDate(t *testing.T) {
	cases := []struct {
		name   string
		anchor time.Time
		cycle  Cycle
		want   time.Time
	}{
		{"monthly_clips_to_february", date(2023, time.January, 31), CycleMonthly, date(2023, time.February, 28)},
		{"monthly_leap_february", date(2024, time.January, 31), CycleMonthly, date(2024, time.February, 29)},
		{"monthly_plain", date(2024, time.January, 1), CycleMonthly, date(2024, time.February, 1)},
		{"monthly_year_rollover", date(2023, time.December, 15), CycleMonthly, date(2024, time.January, 15)},
		{"quarterly_into_leap_february", date(2023, time.November, 30), CycleQuarterly, date(2024, time.February, 29)},
		{"quarterly_plain", date(2024, time.April, 30), CycleQuarterly, date(2024, time.July, 30)},
		{"yearly_keeps_day", date(2023, time.January, 31), CycleYearly, date(2024, time.January, 31)},
		{"yearly_from_leap_day", date(2024, time.February, 29), CycleYearly, date(2025, time.February, 28)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextDate(tc.anchor, tc.cycle)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format(time.DateOnly), got.Format(time.DateOnly))
			}
		})
	}
}

func TestNextDateIgnoresTimeOfDay(t *testing.T) {
	anchor := time.Date(2024, time.March, 31, 18, 45, 0, 0, time.FixedZone("X", -5*3600))
	got, err := NextDate(anchor, CycleMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := date(2024, time.April, 30); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextDateUsesStoredCalendarDay(t *testing.T) {
	// 2024-02-01 UTC midnight read back in a zone west of UTC is still Jan 31 locally.
	anchor := date(2024, time.February, 1).In(time.FixedZone("EST", -5*3600))
	got, err := NextDate(anchor, CycleMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := date(2024, time.March, 1); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextDateRejectsUnknownCycle(t *testing.T) {
	_, err := NextDate(date(2024, time.January, 1), Cycle("weekly"))
	if !errors.Is(err, ErrInvalidBillingCycle) {
		t.Fatalf("expected ErrInvalidBillingCycle, got %v", err)
	}
}

func TestParseCycle(t *testing.T) {
	cases := map[string]Cycle{
		"monthly":   CycleMonthly,
		" Monthly ": CycleMonthly,
		"mounthly":  CycleMonthly,
		"QUARTERLY": CycleQuarterly,
		"yearly":    CycleYearly,
	}
	for raw, want := range cases {
		got, err := ParseCycle(raw)
		if err != nil {
			t.Fatalf("ParseCycle(%q): unexpected error %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseCycle(%q): expected %q, got %q", raw, want, got)
		}
	}

	for _, raw := range []string{"", "weekly", "annual"} {
		if _, err := ParseCycle(raw); !errors.Is(err, ErrInvalidBillingCycle) {
			t.Fatalf("ParseCycle(%q): expected ErrInvalidBillingCycle, got %v", raw, err)
		}
	}
}
