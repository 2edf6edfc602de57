package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mercaline/storefront-backend/pkg/config"
)

// Calculator resolves sales tax from a state rate table. Pickup orders are
// collected at the counter and carry no tax here.
type Calculator struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
	taxShipping bool
}

// stateRates holds percentage rates per two-letter state code.
var stateRates = map[string]string{
	"AL": "4.00",
	"AZ": "5.60",
	"CA": "7.25",
	"CO": "2.90",
	"FL": "6.00",
	"GA": "4.00",
	"IL": "6.25",
	"MA": "6.25",
	"MI": "6.00",
	"NC": "4.75",
	"NJ": "6.625",
	"NV": "6.85",
	"NY": "4.00",
	"OH": "5.75",
	"PA": "6.00",
	"TX": "6.25",
	"UT": "6.10",
	"VA": "5.30",
	"WA": "6.50",
}

// NewCalculator builds a calculator with the built-in state table.
func NewCalculator(cfg config.TaxConfig) *Calculator {
	rates := make(map[string]decimal.Decimal, len(stateRates))
	for state, rate := range stateRates {
		rates[state] = decimal.RequireFromString(rate)
	}
	return &Calculator{
		rates:       rates,
		defaultRate: decimal.Zero,
		taxShipping: cfg.ApplyToShipping,
	}
}

// RateFor returns the percentage rate for a state, or the default when the
// state is unknown.
func (c *Calculator) RateFor(state string) decimal.Decimal {
	rate, ok := c.rates[strings.ToUpper(strings.TrimSpace(state))]
	if !ok {
		return c.defaultRate
	}
	return rate
}

// ForOrder computes tax in cents on the order. The shipping fee joins the
// taxable base only when the calculator is configured to tax shipping.
// Rounding is half-up on the cent.
func (c *Calculator) ForOrder(subtotalCents, shippingFeeCents int, state string, pickup bool) int {
	if pickup {
		return 0
	}
	taxableCents := subtotalCents
	if c.taxShipping {
		taxableCents += shippingFeeCents
	}
	if taxableCents <= 0 {
		return 0
	}
	rate := c.RateFor(state)
	if rate.IsZero() {
		return 0
	}
	tax := decimal.NewFromInt(int64(taxableCents)).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return int(tax.IntPart())
}
