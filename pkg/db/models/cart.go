package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/enums"
	"github.com/mercaline/storefront-backend/pkg/types"
)

// Cart is the working cart for either an authenticated user or an anonymous
// session. Exactly one of UserID and SessionID is set; the schema enforces
// the XOR with a CHECK constraint.
type Cart struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID          *uuid.UUID           `gorm:"column:user_id;type:uuid;index"`
	SessionID       *string              `gorm:"column:session_id;index"`
	PaymentMethod   *enums.PaymentMethod `gorm:"column:payment_method"`
	IsPickup        bool                 `gorm:"column:is_pickup;not null;default:false"`
	ShippingAddress *types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Items           []CartItem           `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CartItem is a product (or variant) line in a working cart.
type CartItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Quantity  int        `gorm:"column:quantity;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ci *CartItem) BeforeCreate(*gorm.DB) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return nil
}
