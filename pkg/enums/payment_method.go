package enums

import "fmt"

// PaymentMethod describes how a shopper intends to settle an order. Stripe is
// the only gateway-backed method; the rest are settled manually and verified
// by staff.
type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodZelle        PaymentMethod = "zelle"
	PaymentMethodCashApp      PaymentMethod = "cashapp"
	PaymentMethodVenmo        PaymentMethod = "venmo"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodStripe,
	PaymentMethodZelle,
	PaymentMethodCashApp,
	PaymentMethodVenmo,
	PaymentMethodBankTransfer,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresGateway reports whether the method needs a payment intent with the
// external gateway before the shopper can pay.
func (p PaymentMethod) RequiresGateway() bool {
	return p == PaymentMethodStripe
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
