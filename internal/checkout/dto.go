package checkout

import (
	"github.com/google/uuid"

	"github.com/mercaline/storefront-backend/pkg/enums"
)

// OrderResult is the client-facing view returned when a lock becomes an
// order. Existing reports whether the call returned an order created by an
// earlier, identical request.
type OrderResult struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalCents    int                 `json:"total_cents"`
	Existing      bool                `json:"-"`
}
