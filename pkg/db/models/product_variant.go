package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductVariant is a purchasable variation of a Product with its own stock
// pool and optional price override.
type ProductVariant struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name           string    `gorm:"column:name;not null"`
	PriceCents     *int      `gorm:"column:price_cents"`
	SalePriceCents *int      `gorm:"column:sale_price_cents"`
	Stock          int       `gorm:"column:stock;not null;default:0"`
	IsInStock      bool      `gorm:"column:is_in_stock;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// EffectivePriceCents resolves the variant price, falling back to the parent
// product pricing when the variant has no override.
func (v ProductVariant) EffectivePriceCents(parent Product) int {
	base := parent.EffectivePriceCents()
	if v.PriceCents != nil && *v.PriceCents > 0 {
		base = *v.PriceCents
	}
	if v.SalePriceCents != nil && *v.SalePriceCents > 0 && *v.SalePriceCents < base {
		base = *v.SalePriceCents
	}
	return base
}
