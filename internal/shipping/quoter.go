package shipping

import (
	"github.com/mercaline/storefront-backend/pkg/config"
)

// Quoter prices delivery with a flat fee that is waived above a subtotal
// threshold. Pickup orders ship for free by definition.
type Quoter struct {
	flatFeeCents       int
	freeThresholdCents int
}

// NewQuoter builds a quoter from the shipping configuration.
func NewQuoter(cfg config.ShippingConfig) *Quoter {
	return &Quoter{
		flatFeeCents:       cfg.FlatFeeCents,
		freeThresholdCents: cfg.FreeThresholdCents,
	}
}

// FeeCents returns the shipping fee for the given subtotal.
func (q *Quoter) FeeCents(subtotalCents int, pickup bool) int {
	if pickup {
		return 0
	}
	if q.freeThresholdCents > 0 && subtotalCents >= q.freeThresholdCents {
		return 0
	}
	return q.flatFeeCents
}
