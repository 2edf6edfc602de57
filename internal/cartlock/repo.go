package cartlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Repository defines persistence for carts, locks and their reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	UpdateCartPaymentMethod(ctx context.Context, cartID uuid.UUID, method *enums.PaymentMethod) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error

	CreateLock(ctx context.Context, lock *models.CartLock) (*models.CartLock, error)
	FindLockByToken(ctx context.Context, token string) (*models.CartLock, error)
	FindLockByIntentRef(ctx context.Context, ref string) (*models.CartLock, error)
	CancelActiveLocksForCart(ctx context.Context, cartID uuid.UUID) (int64, error)
	CancelLock(ctx context.Context, lockID uuid.UUID) (bool, error)
	ConsumeActiveLock(ctx context.Context, token string, now time.Time) (bool, error)
	ForceConsumeLock(ctx context.Context, lockID uuid.UUID, now time.Time) (bool, error)
	ResurrectLock(ctx context.Context, lockID uuid.UUID, expiresAt time.Time) error
	ExtendLock(ctx context.Context, lockID uuid.UUID, expiresAt time.Time) error
	SetPaymentIntentRef(ctx context.Context, lockID uuid.UUID, ref string) error
	AppendLockFlags(ctx context.Context, lockID uuid.UUID, flags ...string) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart lock repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) UpdateCartPaymentMethod(ctx context.Context, cartID uuid.UUID, method *enums.PaymentMethod) error {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("payment_method", method)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearCart removes the cart's lines and payment method selection after the
// cart converts into an order.
func (r *repository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("payment_method", nil).Error
}

func (r *repository) CreateLock(ctx context.Context, lock *models.CartLock) (*models.CartLock, error) {
	if err := r.db.WithContext(ctx).Create(lock).Error; err != nil {
		return nil, err
	}
	return lock, nil
}

func (r *repository) FindLockByToken(ctx context.Context, token string) (*models.CartLock, error) {
	var lock models.CartLock
	err := r.db.WithContext(ctx).
		Preload("Reservations").
		Where("token = ?", token).
		First(&lock).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *repository) FindLockByIntentRef(ctx context.Context, ref string) (*models.CartLock, error) {
	var lock models.CartLock
	err := r.db.WithContext(ctx).
		Preload("Reservations").
		Where("payment_intent_ref = ?", ref).
		First(&lock).Error
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *repository) CancelActiveLocksForCart(ctx context.Context, cartID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("cart_id = ? AND status = ?", cartID, enums.LockStatusActive).
		Update("status", enums.LockStatusCancelled)
	return result.RowsAffected, result.Error
}

// CancelLock releases a single active lock. Already-terminal locks are left
// untouched and report false.
func (r *repository) CancelLock(ctx context.Context, lockID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ? AND status = ?", lockID, enums.LockStatusActive).
		Update("status", enums.LockStatusCancelled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ConsumeActiveLock is the single linearization point for a lock: exactly one
// caller can flip an active, unexpired lock to used.
func (r *repository) ConsumeActiveLock(ctx context.Context, token string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("token = ? AND status = ? AND expires_at > ?", token, enums.LockStatusActive, now).
		Updates(map[string]any{
			"status":  enums.LockStatusUsed,
			"used_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ForceConsumeLock flips a lapsed lock to used. Only the expired-with-
// successful-payment path takes this branch, after stock re-validation.
func (r *repository) ForceConsumeLock(ctx context.Context, lockID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ? AND status IN ?", lockID, []enums.LockStatus{enums.LockStatusActive, enums.LockStatusExpired}).
		Updates(map[string]any{
			"status":  enums.LockStatusUsed,
			"used_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ResurrectLock(ctx context.Context, lockID uuid.UUID, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ?", lockID).
		Updates(map[string]any{
			"status":     enums.LockStatusActive,
			"expires_at": expiresAt,
		}).Error
}

func (r *repository) ExtendLock(ctx context.Context, lockID uuid.UUID, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ?", lockID).
		Update("expires_at", expiresAt).Error
}

func (r *repository) SetPaymentIntentRef(ctx context.Context, lockID uuid.UUID, ref string) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ?", lockID).
		Update("payment_intent_ref", ref).Error
}

func (r *repository) AppendLockFlags(ctx context.Context, lockID uuid.UUID, flags ...string) error {
	var lock models.CartLock
	if err := r.db.WithContext(ctx).Where("id = ?", lockID).First(&lock).Error; err != nil {
		return err
	}
	for _, flag := range flags {
		if !lock.HasFlag(flag) {
			lock.Flags = append(lock.Flags, flag)
		}
	}
	return r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("id = ?", lockID).
		Update("flags", lock.Flags).Error
}

// SweepExpired flips every overdue active lock to expired in one statement.
// Safe to run concurrently; each row is flipped at most once.
func (r *repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLock{}).
		Where("status = ? AND expires_at <= ?", enums.LockStatusActive, now).
		Update("status", enums.LockStatusExpired)
	return result.RowsAffected, result.Error
}
