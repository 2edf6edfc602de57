package cartlock

import (
	"time"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Totals carries the frozen money amounts of a lock.
type Totals struct {
	SubtotalCents    int `json:"subtotal_cents"`
	ShippingFeeCents int `json:"shipping_fee_cents"`
	TaxCents         int `json:"tax_cents"`
	TotalCents       int `json:"total_cents"`
}

// PaymentIntentInfo is returned when a gateway intent backs the lock.
type PaymentIntentInfo struct {
	Ref          string `json:"ref"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// LockResult is the client-facing view of a lock.
type LockResult struct {
	Token            string             `json:"lock_token"`
	Status           enums.LockStatus   `json:"status"`
	ExpiresAt        time.Time          `json:"expires_at"`
	ExpiresInSeconds int                `json:"expires_in_seconds"`
	Totals           Totals             `json:"totals"`
	PaymentIntent    *PaymentIntentInfo `json:"payment_intent,omitempty"`
}

func lockResult(lock *models.CartLock, now time.Time) *LockResult {
	remaining := int(lock.ExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &LockResult{
		Token:            lock.Token,
		Status:           lock.Status,
		ExpiresAt:        lock.ExpiresAt,
		ExpiresInSeconds: remaining,
		Totals: Totals{
			SubtotalCents:    lock.SubtotalCents,
			ShippingFeeCents: lock.ShippingFeeCents,
			TaxCents:         lock.TaxCents,
			TotalCents:       lock.TotalCents,
		},
	}
}
