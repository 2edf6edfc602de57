package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the storefront listing. Stock counts on-hand units; availability
// additionally subtracts units held by active cart locks.
type Product struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name           string           `gorm:"column:name;not null"`
	SKU            string           `gorm:"column:sku;uniqueIndex;not null"`
	PriceCents     int              `gorm:"column:price_cents;not null"`
	SalePriceCents *int             `gorm:"column:sale_price_cents"`
	Stock          int              `gorm:"column:stock;not null;default:0"`
	IsInStock      bool             `gorm:"column:is_in_stock;not null;default:false"`
	IsActive       bool             `gorm:"column:is_active;not null;default:true"`
	Variants       []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePriceCents resolves the sale price when one is set.
func (p Product) EffectivePriceCents() int {
	if p.SalePriceCents != nil && *p.SalePriceCents > 0 && *p.SalePriceCents < p.PriceCents {
		return *p.SalePriceCents
	}
	return p.PriceCents
}
