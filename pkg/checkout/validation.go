package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

// UnavailableLine reports a cart line whose requested quantity exceeds what is
// currently available for locking.
type UnavailableLine struct {
	ProductID   uuid.UUID  `json:"product_id"`
	VariantID   *uuid.UUID `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name,omitempty"`
	VariantName string     `json:"variant_name,omitempty"`
	Requested   int        `json:"requested"`
	Available   int        `json:"available"`
}

// StockConflictError wraps the unavailable lines into a typed conflict error.
// Lock creation is all-or-nothing, so a single short line fails the whole
// request and every short line is reported.
func StockConflictError(lines []UnavailableLine) error {
	if len(lines) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStockConflict, fmt.Sprintf("insufficient stock for %d item(s)", len(lines))).WithDetails(map[string]any{
		"unavailable_items": lines,
	})
}

// UnavailableLines extracts the report from a stock conflict error, returning
// nil when err is not a stock conflict.
func UnavailableLines(err error) []UnavailableLine {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStockConflict {
		return nil
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return nil
	}
	lines, ok := details["unavailable_items"].([]UnavailableLine)
	if !ok {
		return nil
	}
	return lines
}
