package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const displayDateLayout = "02.01.2006"

// Draft is a rendered notification before it is bound to an owner.
type Draft struct {
	Type     Type
	Title    string
	Message  string
	Metadata map[string]any
}

// Composer renders notification text. Amounts are minor units.
type Composer struct {
	Currency      string
	MinorExponent int32
}

func DefaultComposer() Composer {
	return Composer{Currency: "USD", MinorExponent: 2}
}

func (c Composer) SubscriptionCreated(name string, amount int64, nextPayment *time.Time) Draft {
	var b strings.Builder
	fmt.Fprintf(&b, "You added the subscription '%s'", name)
	if amount > 0 {
		fmt.Fprintf(&b, " for %s", c.FormatAmount(amount))
	}
	b.WriteString(".")
	meta := map[string]any{"amount": amount}
	if nextPayment != nil {
		fmt.Fprintf(&b, " Next payment on %s.", nextPayment.Format(displayDateLayout))
		meta["next_payment_date"] = nextPayment.Format(time.DateOnly)
	}
	return Draft{
		Type:     TypeSubscriptionCreated,
		Title:    "Subscription added",
		Message:  b.String(),
		Metadata: meta,
	}
}

// PriceChanged returns false when the amounts are equal.
func (c Composer) PriceChanged(name string, oldAmount, newAmount int64) (Draft, bool) {
	diff := newAmount - oldAmount
	var change string
	switch {
	case diff > 0:
		change = "went up by " + c.FormatAmount(diff)
	case diff < 0:
		change = "went down by " + c.FormatAmount(-diff)
	default:
		return Draft{}, false
	}
	return Draft{
		Type:    TypePriceChanged,
		Title:   "Price changed",
		Message: fmt.Sprintf("The price of '%s' %s. New price: %s.", name, change, c.FormatAmount(newAmount)),
		Metadata: map[string]any{
			"old_amount": oldAmount,
			"new_amount": newAmount,
		},
	}, true
}

func (c Composer) PaymentDateChanged(name string, oldDate, newDate time.Time) Draft {
	return Draft{
		Type:  TypePaymentDateChanged,
		Title: "Payment date moved",
		Message: fmt.Sprintf("The payment date for '%s' moved from %s to %s.",
			name, oldDate.Format(displayDateLayout), newDate.Format(displayDateLayout)),
		Metadata: map[string]any{
			"old_payment_date": oldDate.Format(time.DateOnly),
			"new_payment_date": newDate.Format(time.DateOnly),
		},
	}
}

func (c Composer) PaymentReminder(name string, paymentDate time.Time, amount int64, daysLeft int) Draft {
	return Draft{
		Type:  TypePaymentReminder,
		Title: "Payment coming up",
		Message: fmt.Sprintf("In %s (%s) %s will be charged for '%s'.",
			pluralDays(daysLeft), paymentDate.Format(displayDateLayout), c.FormatAmount(amount), name),
		Metadata: map[string]any{
			"amount":       amount,
			"payment_date": paymentDate.Format(time.DateOnly),
			"days_left":    daysLeft,
		},
	}
}

func (c Composer) AutoRenewalChanged(name string, enabled bool) Draft {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	return Draft{
		Type:     TypeAutoRenewalChanged,
		Title:    "Auto-renewal changed",
		Message:  fmt.Sprintf("Automatic renewal of '%s' is now %s.", name, status),
		Metadata: map[string]any{"auto_renewal": enabled},
	}
}

// FormatAmount renders minor units as a fixed-point amount with currency code.
func (c Composer) FormatAmount(amount int64) string {
	value := decimal.New(amount, -c.MinorExponent).StringFixed(c.MinorExponent)
	if c.Currency == "" {
		return value
	}
	return value + " " + c.Currency
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// ActionURL links a notification back to its subscription.
func ActionURL(subscriptionID fmt.Stringer) string {
	return "/subscriptions/" + subscriptionID.String()
}
