package clock

import (
	"time"

	"github.com/smallbiznis/subtrack/internal/config"
	"go.uber.org/fx"
)

// Clock is the time source for everything that reasons about "today".
type Clock interface {
	Now() time.Time
	Today() time.Time
}

type systemClock struct {
	loc *time.Location
}

// New returns a wall clock that resolves calendar days in loc.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (c systemClock) Today() time.Time {
	return DateOf(time.Now().In(c.loc))
}

// DateOf truncates t to its calendar day, expressed as UTC midnight.
// Calendar dates are stored and compared in this form everywhere.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func provideClock(cfg config.Config) (Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return New(loc), nil
}

var Module = fx.Module("clock",
	fx.Provide(provideClock),
)
