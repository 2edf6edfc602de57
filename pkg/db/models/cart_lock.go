package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Reconciliation flags recorded on a lock when webhook handling or the
// expired-payment path needs a human followup.
const (
	LockFlagPaymentSucceeded = "payment_succeeded"
	LockFlagRequiresRefund   = "requires_refund"
)

// CartLock freezes a cart's totals and holds its stock for the checkout
// window. At most one active lock exists per cart; the token is the public
// handle handed to the client.
type CartLock struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID          `gorm:"column:cart_id;type:uuid;not null;index"`
	Token            string             `gorm:"column:token;uniqueIndex;not null"`
	Status           enums.LockStatus   `gorm:"column:status;not null;default:'active'"`
	SubtotalCents    int                `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents int                `gorm:"column:shipping_fee_cents;not null"`
	TaxCents         int                `gorm:"column:tax_cents;not null"`
	TotalCents       int                `gorm:"column:total_cents;not null"`
	PaymentIntentRef *string            `gorm:"column:payment_intent_ref;index"`
	Flags            pq.StringArray     `gorm:"column:flags;type:text[]"`
	ExpiresAt        time.Time          `gorm:"column:expires_at;not null;index"`
	UsedAt           *time.Time         `gorm:"column:used_at"`
	Reservations     []StockReservation `gorm:"foreignKey:LockID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *CartLock) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ExpiredAt reports whether the lock's hold has lapsed at the given instant.
// Status alone is not authoritative; the sweeper flips rows lazily.
func (l CartLock) ExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// HasFlag reports whether the reconciliation flag is present.
func (l CartLock) HasFlag(flag string) bool {
	for _, f := range l.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// StockReservation pins a quantity of a product (or variant) to a lock at a
// frozen unit price.
type StockReservation struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	LockID         uuid.UUID  `gorm:"column:lock_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (r *StockReservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
