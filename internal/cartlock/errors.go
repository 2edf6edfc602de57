package cartlock

import (
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
)

// Lock outcome reasons surfaced to API clients in error details. The client
// keys retry behavior off these, so they are part of the wire contract.
const (
	ReasonLockNotFound       = "lock_not_found"
	ReasonLockAlreadyUsed    = "lock_already_used"
	ReasonLockCancelled      = "lock_cancelled"
	ReasonLockExpired        = "lock_expired"
	ReasonLockExpiredNoStock = "lock_expired_no_stock"
)

func reasonError(code pkgerrors.Code, reason, message string) error {
	return pkgerrors.New(code, message).WithDetails(map[string]any{"reason": reason})
}

// ErrLockNotFound reports an unknown token.
func ErrLockNotFound() error {
	return reasonError(pkgerrors.CodeNotFound, ReasonLockNotFound, "checkout lock not found")
}

// ErrLockAlreadyUsed reports a token that has already produced an order.
func ErrLockAlreadyUsed() error {
	return reasonError(pkgerrors.CodeStateConflict, ReasonLockAlreadyUsed, "checkout lock already used")
}

// ErrLockCancelled reports a token that was released or superseded.
func ErrLockCancelled() error {
	return reasonError(pkgerrors.CodeStateConflict, ReasonLockCancelled, "checkout lock was cancelled")
}

// ErrLockExpired reports a lapsed hold.
func ErrLockExpired() error {
	return reasonError(pkgerrors.CodeStateConflict, ReasonLockExpired, "checkout lock expired")
}

// ErrLockExpiredNoStock reports a lapsed hold whose payment already succeeded
// but whose stock was claimed by someone else in the meantime.
func ErrLockExpiredNoStock() error {
	return reasonError(pkgerrors.CodeStateConflict, ReasonLockExpiredNoStock, "checkout lock expired and stock is no longer available")
}

// Reason extracts the outcome reason from a lock error, or "" when the error
// does not carry one.
func Reason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
