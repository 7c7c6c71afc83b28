package enums

import "fmt"

// CheckoutSessionStatus tracks the one-directional lifecycle of a checkout
// session. Consumed, expired and abandoned are terminal.
type CheckoutSessionStatus string

const (
	CheckoutSessionStatusCreated   CheckoutSessionStatus = "created"
	CheckoutSessionStatusValidated CheckoutSessionStatus = "validated"
	CheckoutSessionStatusConsumed  CheckoutSessionStatus = "consumed"
	CheckoutSessionStatusExpired   CheckoutSessionStatus = "expired"
	CheckoutSessionStatusAbandoned CheckoutSessionStatus = "abandoned"
)

var validCheckoutSessionStatuses = []CheckoutSessionStatus{
	CheckoutSessionStatusCreated,
	CheckoutSessionStatusValidated,
	CheckoutSessionStatusConsumed,
	CheckoutSessionStatusExpired,
	CheckoutSessionStatusAbandoned,
}

// String implements fmt.Stringer.
func (s CheckoutSessionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutSessionStatus.
func (s CheckoutSessionStatus) IsValid() bool {
	for _, candidate := range validCheckoutSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session can no longer transition.
func (s CheckoutSessionStatus) IsTerminal() bool {
	switch s {
	case CheckoutSessionStatusConsumed, CheckoutSessionStatusExpired, CheckoutSessionStatusAbandoned:
		return true
	default:
		return false
	}
}

// ParseCheckoutSessionStatus converts raw input into a CheckoutSessionStatus.
func ParseCheckoutSessionStatus(value string) (CheckoutSessionStatus, error) {
	for _, candidate := range validCheckoutSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout session status %q", value)
}
