package catalog

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/db/models"
)

func intPtr(v int) *int { return &v }

func TestResolveLine_ProductPricing(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), PriceCents: 5000}

	price, variant, err := ResolveLine(product, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if variant != nil {
		t.Fatalf("expected no variant, got %+v", variant)
	}
	if price != 5000 {
		t.Fatalf("expected regular price, got %d", price)
	}

	product.SalePriceCents = intPtr(4200)
	price, _, err = ResolveLine(product, nil)
	if err != nil {
		t.Fatalf("resolve with sale: %v", err)
	}
	if price != 4200 {
		t.Fatalf("expected sale price to win, got %d", price)
	}

	// a "sale" above the regular price is ignored
	product.SalePriceCents = intPtr(6000)
	price, _, _ = ResolveLine(product, nil)
	if price != 5000 {
		t.Fatalf("expected higher sale price to be ignored, got %d", price)
	}
}

func TestResolveLine_VariantPricing(t *testing.T) {
	t.Parallel()

	variantID := uuid.New()
	product := models.Product{
		ID:         uuid.New(),
		PriceCents: 5000,
		Variants: []models.ProductVariant{
			{ID: variantID, Name: "Brass", PriceCents: intPtr(5500), SalePriceCents: intPtr(4800)},
		},
	}

	price, variant, err := ResolveLine(product, &variantID)
	if err != nil {
		t.Fatalf("resolve variant: %v", err)
	}
	if variant == nil || variant.ID != variantID {
		t.Fatalf("expected variant %s, got %+v", variantID, variant)
	}
	if price != 4800 {
		t.Fatalf("expected variant sale price, got %d", price)
	}
}

func TestResolveLine_VariantFallsBackToProductPrice(t *testing.T) {
	t.Parallel()

	variantID := uuid.New()
	product := models.Product{
		ID:             uuid.New(),
		PriceCents:     5000,
		SalePriceCents: intPtr(4500),
		Variants: []models.ProductVariant{
			{ID: variantID, Name: "Standard"},
		},
	}

	price, _, err := ResolveLine(product, &variantID)
	if err != nil {
		t.Fatalf("resolve variant: %v", err)
	}
	if price != 4500 {
		t.Fatalf("expected parent sale price, got %d", price)
	}
}

func TestResolveLine_UnknownVariant(t *testing.T) {
	t.Parallel()

	unknown := uuid.New()
	product := models.Product{ID: uuid.New(), PriceCents: 5000}
	if _, _, err := ResolveLine(product, &unknown); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}
