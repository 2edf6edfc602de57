package types

import "strings"

// Address is the shipping destination snapshot stored as jsonb on carts and
// orders.
type Address struct {
	Street     string  `json:"street"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// Complete reports whether the address carries enough fields to quote
// shipping and taxes for a delivery order.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" &&
		strings.TrimSpace(a.PostalCode) != ""
}
