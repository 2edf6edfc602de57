package enums

import "fmt"

// LockStatus tracks the cart lock state machine. Active is the only
// non-terminal state; expired locks may be resurrected by an extension while
// stock is still available.
type LockStatus string

const (
	LockStatusActive    LockStatus = "active"
	LockStatusUsed      LockStatus = "used"
	LockStatusCancelled LockStatus = "cancelled"
	LockStatusExpired   LockStatus = "expired"
)

var validLockStatuses = []LockStatus{
	LockStatusActive,
	LockStatusUsed,
	LockStatusCancelled,
	LockStatusExpired,
}

// String implements fmt.Stringer.
func (l LockStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LockStatus.
func (l LockStatus) IsValid() bool {
	for _, candidate := range validLockStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer hold stock.
func (l LockStatus) IsTerminal() bool {
	return l == LockStatusUsed || l == LockStatusCancelled || l == LockStatusExpired
}

// ParseLockStatus converts raw input into a LockStatus.
func ParseLockStatus(value string) (LockStatus, error) {
	for _, candidate := range validLockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lock status %q", value)
}
