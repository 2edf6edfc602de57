package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/enums"
	"github.com/mercaline/storefront-backend/pkg/types"
)

// Order is the durable record created when a cart lock is consumed. Totals
// are copied verbatim from the lock, never recomputed.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;uniqueIndex;not null"`
	CartID           uuid.UUID           `gorm:"column:cart_id;type:uuid;not null;index"`
	LockID           uuid.UUID           `gorm:"column:lock_id;type:uuid;not null;uniqueIndex"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid;index"`
	SessionID        *string             `gorm:"column:session_id"`
	Status           enums.OrderStatus   `gorm:"column:status;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentIntentRef *string             `gorm:"column:payment_intent_ref;uniqueIndex"`
	IsPickup         bool                `gorm:"column:is_pickup;not null;default:false"`
	ShippingAddress  *types.Address      `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	SubtotalCents    int                 `gorm:"column:subtotal_cents;not null"`
	ShippingFeeCents int                 `gorm:"column:shipping_fee_cents;not null"`
	TaxCents         int                 `gorm:"column:tax_cents;not null"`
	TotalCents       int                 `gorm:"column:total_cents;not null"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem snapshots a purchased line at the price frozen by the lock.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName    string     `gorm:"column:product_name;not null"`
	VariantName    *string    `gorm:"column:variant_name"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (oi *OrderItem) BeforeCreate(*gorm.DB) error {
	if oi.ID == uuid.Nil {
		oi.ID = uuid.New()
	}
	return nil
}
