package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/db/models"
)

// ResolveLine locates the variant (when requested) and the unit price for a
// cart line. The sale price wins over the regular price when it is lower.
func ResolveLine(product models.Product, variantID *uuid.UUID) (unitPriceCents int, variant *models.ProductVariant, err error) {
	if variantID == nil {
		return product.EffectivePriceCents(), nil, nil
	}
	for i := range product.Variants {
		if product.Variants[i].ID == *variantID {
			v := product.Variants[i]
			return v.EffectivePriceCents(product), &v, nil
		}
	}
	return 0, nil, fmt.Errorf("variant %s not found on product %s", *variantID, product.ID)
}
