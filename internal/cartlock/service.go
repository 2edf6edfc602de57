package cartlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/catalog"
	"github.com/mercaline/storefront-backend/internal/shipping"
	"github.com/mercaline/storefront-backend/internal/stockledger"
	"github.com/mercaline/storefront-backend/internal/tax"
	"github.com/mercaline/storefront-backend/pkg/checkout"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"
	pkgstripe "github.com/mercaline/storefront-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentGateway is the slice of the payment provider the lock manager needs.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int, currency string, metadata map[string]string) (*pkgstripe.Intent, error)
	RetrieveStatus(ctx context.Context, ref string) (string, error)
	CancelIntent(ctx context.Context, ref string) error
}

// Service manages the cart lock lifecycle.
type Service interface {
	Create(ctx context.Context, cartID uuid.UUID) (*LockResult, error)
	Extend(ctx context.Context, token string) (*LockResult, error)
	Release(ctx context.Context, token string) error
	Consume(ctx context.Context, tx *gorm.DB, token string) (*models.CartLock, error)
	Sweep(ctx context.Context) (int64, error)
	UpdatePaymentMethod(ctx context.Context, cartID uuid.UUID, method string) error
}

type service struct {
	repo    Repository
	catalog catalog.Repository
	tx      txRunner
	quoter  *shipping.Quoter
	taxes   *tax.Calculator
	gateway PaymentGateway
	metrics *metrics.CheckoutMetrics
	log     *logger.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewService wires the lock manager. The gateway may be nil when the
// deployment only accepts manual payment methods.
func NewService(
	repo Repository,
	catalogRepo catalog.Repository,
	tx txRunner,
	quoter *shipping.Quoter,
	taxes *tax.Calculator,
	gateway PaymentGateway,
	checkoutMetrics *metrics.CheckoutMetrics,
	log *logger.Logger,
	ttl time.Duration,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart lock repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if quoter == nil {
		return nil, fmt.Errorf("shipping quoter required")
	}
	if taxes == nil {
		return nil, fmt.Errorf("tax calculator required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &service{
		repo:    repo,
		catalog: catalogRepo,
		tx:      tx,
		quoter:  quoter,
		taxes:   taxes,
		gateway: gateway,
		metrics: checkoutMetrics,
		log:     log,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Create freezes the cart's totals and holds its stock behind a fresh lock.
// Any prior active lock for the cart is cancelled first, so a cart never
// holds stock twice.
func (s *service) Create(ctx context.Context, cartID uuid.UUID) (*LockResult, error) {
	now := s.now().UTC()

	cart, err := s.repo.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	if err := validateCheckoutReady(cart); err != nil {
		return nil, err
	}

	var lock *models.CartLock
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)

		cancelled, err := repo.CancelActiveLocksForCart(ctx, cartID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling prior locks")
		}
		if cancelled > 0 && s.log != nil {
			s.log.Info(s.log.WithCartID(ctx, cartID.String()), fmt.Sprintf("cancelled %d prior lock(s)", cancelled))
		}

		lines := make([]stockledger.Line, 0, len(cart.Items))
		for _, item := range cart.Items {
			lines = append(lines, stockledger.Line{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}
		if err := stockledger.LockRows(ctx, tx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking stock rows")
		}

		reservations, subtotal, unavailable, err := s.buildReservations(ctx, tx, catalogRepo, cart.Items, uuid.Nil, now)
		if err != nil {
			return err
		}
		if len(unavailable) > 0 {
			s.metrics.IncStockConflict()
			return checkout.StockConflictError(unavailable)
		}

		shippingFee := s.quoter.FeeCents(subtotal, cart.IsPickup)
		state := ""
		if cart.ShippingAddress != nil {
			state = cart.ShippingAddress.State
		}
		taxCents := s.taxes.ForOrder(subtotal, shippingFee, state, cart.IsPickup)

		token, err := GenerateToken()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting token")
		}

		lock = &models.CartLock{
			CartID:           cartID,
			Token:            token,
			Status:           enums.LockStatusActive,
			SubtotalCents:    subtotal,
			ShippingFeeCents: shippingFee,
			TaxCents:         taxCents,
			TotalCents:       subtotal + shippingFee + taxCents,
			ExpiresAt:        now.Add(s.ttl),
			Reservations:     reservations,
		}
		if _, err := repo.CreateLock(ctx, lock); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting lock")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.metrics.IncLockCreated()
	result := lockResult(lock, now)

	if cart.PaymentMethod != nil && cart.PaymentMethod.RequiresGateway() && s.gateway != nil {
		intent, err := s.gateway.CreateIntent(ctx, lock.TotalCents, "usd", map[string]string{
			"lock_token": lock.Token,
			"cart_id":    cartID.String(),
		})
		switch {
		case err != nil:
			// the client can retry payment setup; the hold itself stands
			if s.log != nil {
				s.log.Warn(s.log.WithLockToken(ctx, lock.Token), fmt.Sprintf("payment intent creation failed: %v", err))
			}
		default:
			if err := s.repo.SetPaymentIntentRef(ctx, lock.ID, intent.Ref); err != nil {
				if s.log != nil {
					s.log.Warn(s.log.WithLockToken(ctx, lock.Token), fmt.Sprintf("storing intent ref failed: %v", err))
				}
			} else {
				lock.PaymentIntentRef = &intent.Ref
				result.PaymentIntent = &PaymentIntentInfo{Ref: intent.Ref, ClientSecret: intent.ClientSecret}
			}
		}
	}

	return result, nil
}

// Extend pushes an active lock's expiry out by a fresh TTL. A lapsed lock is
// resurrected only if every reservation still fits the available stock.
func (s *service) Extend(ctx context.Context, token string) (*LockResult, error) {
	now := s.now().UTC()

	var result *LockResult
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		lock, err := repo.FindLockByToken(ctx, token)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLockNotFound()
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lock")
		}

		switch lock.Status {
		case enums.LockStatusUsed:
			return ErrLockAlreadyUsed()
		case enums.LockStatusCancelled:
			return ErrLockCancelled()
		}

		expiresAt := now.Add(s.ttl)
		if lock.Status == enums.LockStatusActive && !lock.ExpiredAt(now) {
			if err := repo.ExtendLock(ctx, lock.ID, expiresAt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "extending lock")
			}
			lock.ExpiresAt = expiresAt
			result = lockResult(lock, now)
			return nil
		}

		// lapsed: the hold is gone, re-validate before resurrecting
		unavailable, err := s.revalidateReservations(ctx, tx, lock, now)
		if err != nil {
			return err
		}
		if len(unavailable) > 0 {
			s.metrics.IncStockConflict()
			return checkout.StockConflictError(unavailable)
		}
		if err := repo.ResurrectLock(ctx, lock.ID, expiresAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resurrecting lock")
		}
		lock.Status = enums.LockStatusActive
		lock.ExpiresAt = expiresAt
		result = lockResult(lock, now)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return result, nil
}

// Release cancels the lock behind the token. It is total: unknown tokens and
// already-terminal locks succeed, so page-unload beacons can fire blindly.
func (s *service) Release(ctx context.Context, token string) error {
	lock, err := s.repo.FindLockByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lock")
	}

	cancelled, err := s.repo.CancelLock(ctx, lock.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling lock")
	}
	if !cancelled {
		return nil
	}
	s.metrics.IncLockReleased()

	if lock.PaymentIntentRef != nil && s.gateway != nil {
		if err := s.gateway.CancelIntent(ctx, *lock.PaymentIntentRef); err != nil && s.log != nil {
			s.log.Warn(s.log.WithLockToken(ctx, token), fmt.Sprintf("cancelling payment intent failed: %v", err))
		}
	}
	return nil
}

// Consume flips the lock to used inside the caller's transaction. Exactly one
// caller wins; every other outcome maps to a distinct reason error.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, token string) (*models.CartLock, error) {
	now := s.now().UTC()
	repo := s.repo.WithTx(tx)

	lock, err := repo.FindLockByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLockNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lock")
	}

	won, err := repo.ConsumeActiveLock(ctx, token, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consuming lock")
	}
	if won {
		s.metrics.IncLockConsumed()
		lock.Status = enums.LockStatusUsed
		lock.UsedAt = &now
		return lock, nil
	}

	// reload to see what we lost to
	lock, err = repo.FindLockByToken(ctx, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading lock")
	}
	switch lock.Status {
	case enums.LockStatusUsed:
		return nil, ErrLockAlreadyUsed()
	case enums.LockStatusCancelled:
		return nil, ErrLockCancelled()
	}

	// lapsed; if the shopper already paid, honor the payment when the stock
	// is still there
	if lock.PaymentIntentRef != nil && s.gateway != nil {
		status, err := s.gateway.RetrieveStatus(ctx, *lock.PaymentIntentRef)
		if err != nil {
			if s.log != nil {
				s.log.Warn(s.log.WithLockToken(ctx, token), fmt.Sprintf("retrieving intent status failed: %v", err))
			}
		} else if status == pkgstripe.IntentStatusSucceeded {
			return s.consumeLapsedPaidLock(ctx, tx, repo, lock, now)
		}
	}
	return nil, ErrLockExpired()
}

func (s *service) consumeLapsedPaidLock(ctx context.Context, tx *gorm.DB, repo Repository, lock *models.CartLock, now time.Time) (*models.CartLock, error) {
	unavailable, err := s.revalidateReservations(ctx, tx, lock, now)
	if err != nil {
		return nil, err
	}
	if len(unavailable) > 0 {
		if err := repo.AppendLockFlags(ctx, lock.ID, models.LockFlagPaymentSucceeded, models.LockFlagRequiresRefund); err != nil && s.log != nil {
			s.log.Error(s.log.WithLockToken(ctx, lock.Token), "flagging lock for refund", err)
		}
		return nil, ErrLockExpiredNoStock()
	}

	won, err := repo.ForceConsumeLock(ctx, lock.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consuming lapsed lock")
	}
	if !won {
		return nil, ErrLockAlreadyUsed()
	}
	s.metrics.IncLockConsumed()
	lock.Status = enums.LockStatusUsed
	lock.UsedAt = &now
	return lock, nil
}

// Sweep flips overdue active locks to expired and reports how many flipped.
func (s *service) Sweep(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	flipped, err := s.repo.SweepExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.AddLocksExpired(int(flipped))
	return flipped, nil
}

// UpdatePaymentMethod records the shopper's payment method choice on the cart.
func (s *service) UpdatePaymentMethod(ctx context.Context, cartID uuid.UUID, method string) error {
	parsed, err := enums.ParsePaymentMethod(method)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if err := s.repo.UpdateCartPaymentMethod(ctx, cartID, &parsed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment method")
	}
	return nil
}

// buildReservations prices every cart line and checks availability. It
// returns the reservation rows and subtotal for the happy path, or the full
// list of short lines so the client sees everything wrong at once.
func (s *service) buildReservations(
	ctx context.Context,
	tx *gorm.DB,
	catalogRepo catalog.Repository,
	items []models.CartItem,
	excludeLock uuid.UUID,
	now time.Time,
) ([]models.StockReservation, int, []checkout.UnavailableLine, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := catalogRepo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		reservations []models.StockReservation
		subtotal     int
		unavailable  []checkout.UnavailableLine
	)
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			unavailable = append(unavailable, checkout.UnavailableLine{
				ProductID:   item.ProductID,
				VariantID:   item.VariantID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   0,
			})
			continue
		}

		unitPrice, variant, err := catalog.ResolveLine(product, item.VariantID)
		if err != nil {
			unavailable = append(unavailable, checkout.UnavailableLine{
				ProductID:   item.ProductID,
				VariantID:   item.VariantID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   0,
			})
			continue
		}

		line := stockledger.Line{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
		available, err := stockledger.Available(ctx, tx, line, excludeLock, now)
		if err != nil {
			return nil, 0, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking availability")
		}
		if available < item.Quantity {
			variantName := ""
			if variant != nil {
				variantName = variant.Name
			}
			unavailable = append(unavailable, checkout.UnavailableLine{
				ProductID:   item.ProductID,
				VariantID:   item.VariantID,
				ProductName: product.Name,
				VariantName: variantName,
				Requested:   item.Quantity,
				Available:   available,
			})
			continue
		}

		reservations = append(reservations, models.StockReservation{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Quantity:       item.Quantity,
			UnitPriceCents: unitPrice,
		})
		subtotal += unitPrice * item.Quantity
	}
	return reservations, subtotal, unavailable, nil
}

// revalidateReservations re-checks a lapsed lock's reservations against
// current availability, ignoring the lock's own holds.
func (s *service) revalidateReservations(ctx context.Context, tx *gorm.DB, lock *models.CartLock, now time.Time) ([]checkout.UnavailableLine, error) {
	lines := make([]stockledger.Line, 0, len(lock.Reservations))
	for _, res := range lock.Reservations {
		lines = append(lines, stockledger.Line{
			ProductID: res.ProductID,
			VariantID: res.VariantID,
			Quantity:  res.Quantity,
		})
	}
	if err := stockledger.LockRows(ctx, tx, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking stock rows")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.WithTx(tx).FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	names := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		names[p.ID] = p
	}

	var unavailable []checkout.UnavailableLine
	for _, line := range lines {
		available, err := stockledger.Available(ctx, tx, line, lock.ID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking availability")
		}
		if available < line.Quantity {
			product := names[line.ProductID]
			variantName := ""
			if line.VariantID != nil {
				if _, variant, err := catalog.ResolveLine(product, line.VariantID); err == nil && variant != nil {
					variantName = variant.Name
				}
			}
			unavailable = append(unavailable, checkout.UnavailableLine{
				ProductID:   line.ProductID,
				VariantID:   line.VariantID,
				ProductName: product.Name,
				VariantName: variantName,
				Requested:   line.Quantity,
				Available:   available,
			})
		}
	}
	return unavailable, nil
}

func validateCheckoutReady(cart *models.Cart) error {
	if len(cart.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if cart.PaymentMethod == nil || !cart.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method must be selected before checkout")
	}
	if !cart.IsPickup {
		if cart.ShippingAddress == nil || !cart.ShippingAddress.Complete() {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required for delivery")
		}
	}
	return nil
}
