package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComposerSubscriptionCreated(t *testing.T) {
	c := DefaultComposer()
	next := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	draft := c.SubscriptionCreated("Netflix", 1099, &next)
	assert.Equal(t, TypeSubscriptionCreated, draft.Type)
	assert.Equal(t, "You added the subscription 'Netflix' for 10.99 USD. Next payment on 01.02.2024.", draft.Message)

	free := c.SubscriptionCreated("Trial", 0, nil)
	assert.Equal(t, "You added the subscription 'Trial'.", free.Message)
}

func TestComposerPriceChanged(t *testing.T) {
	c := DefaultComposer()

	up, ok := c.PriceChanged("Spotify", 999, 1199)
	assert.True(t, ok)
	assert.Equal(t, "The price of 'Spotify' went up by 2.00 USD. New price: 11.99 USD.", up.Message)

	down, ok := c.PriceChanged("Spotify", 1199, 999)
	assert.True(t, ok)
	assert.Contains(t, down.Message, "went down by 2.00 USD")

	_, ok = c.PriceChanged("Spotify", 999, 999)
	assert.False(t, ok)
}

func TestComposerPaymentReminder(t *testing.T) {
	c := Composer{Currency: "JPY", MinorExponent: 0}
	date := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	one := c.PaymentReminder("Gym", date, 500, 1)
	assert.Equal(t, "In 1 day (04.03.2024) 500 JPY will be charged for 'Gym'.", one.Message)

	three := c.PaymentReminder("Gym", date, 500, 3)
	assert.Contains(t, three.Message, "In 3 days")
	assert.Equal(t, 3, three.Metadata["days_left"])
}

func TestComposerAutoRenewalChanged(t *testing.T) {
	c := DefaultComposer()
	assert.Contains(t, c.AutoRenewalChanged("News", true).Message, "now enabled")
	assert.Contains(t, c.AutoRenewalChanged("News", false).Message, "now disabled")
}

func TestTypeValid(t *testing.T) {
	assert.True(t, TypePaymentReminder.Valid())
	assert.False(t, Type("weekly_digest").Valid())
}

func TestNotificationAfterFindRestoresUTCDates(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC).In(est)
	n := Notification{ScheduledDate: day, ReminderDay: &day}

	assert.NoError(t, n.AfterFind(nil))

	assert.Equal(t, "2024-03-01", n.ScheduledDate.Format(time.DateOnly))
	assert.Equal(t, "2024-03-01", n.ReminderDay.Format(time.DateOnly))
	assert.Nil(t, n.SentAt)
}
