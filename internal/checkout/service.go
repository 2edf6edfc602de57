package checkout

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/cartlock"
	"github.com/mercaline/storefront-backend/internal/catalog"
	"github.com/mercaline/storefront-backend/internal/stockledger"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
	pkgstripe "github.com/mercaline/storefront-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service turns a consumed cart lock into a durable order exactly once.
type Service interface {
	CreateOrder(ctx context.Context, token string) (*OrderResult, error)
}

type service struct {
	orders  Repository
	locks   cartlock.Service
	carts   cartlock.Repository
	catalog catalog.Repository
	tx      txRunner
	gateway cartlock.PaymentGateway
	log     *logger.Logger
	now     func() time.Time
}

// NewService wires the order finalizer.
func NewService(
	orders Repository,
	locks cartlock.Service,
	carts cartlock.Repository,
	catalogRepo catalog.Repository,
	tx txRunner,
	gateway cartlock.PaymentGateway,
	log *logger.Logger,
) (Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock service required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart lock repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		orders:  orders,
		locks:   locks,
		carts:   carts,
		catalog: catalogRepo,
		tx:      tx,
		gateway: gateway,
		log:     log,
		now:     time.Now,
	}, nil
}

// CreateOrder consumes the lock and persists the order in one transaction.
// Totals come from the lock verbatim. Replays of an already-consumed token
// return the order that token produced instead of failing.
func (s *service) CreateOrder(ctx context.Context, token string) (*OrderResult, error) {
	now := s.now().UTC()

	var (
		result *OrderResult
		order  *models.Order
	)
	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		carts := s.carts.WithTx(tx)

		lock, err := s.locks.Consume(ctx, tx, token)
		if err != nil {
			if cartlock.Reason(err) == cartlock.ReasonLockAlreadyUsed {
				if existing := s.findExistingOrder(ctx, tx, token); existing != nil {
					result = orderResult(existing, true)
					return nil
				}
			}
			return err
		}

		cart, err := carts.FindCartByID(ctx, lock.CartID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
		}
		if cart.PaymentMethod == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "cart has no payment method")
		}
		method := *cart.PaymentMethod

		items, err := s.buildOrderItems(ctx, tx, lock.Reservations)
		if err != nil {
			return err
		}

		number, err := generateOrderNumber(now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating order number")
		}

		status := enums.OrderStatusPendingVerification
		if method.RequiresGateway() {
			status = enums.OrderStatusProcessingPayment
		}

		order = &models.Order{
			OrderNumber:      number,
			CartID:           cart.ID,
			LockID:           lock.ID,
			UserID:           cart.UserID,
			SessionID:        cart.SessionID,
			Status:           status,
			PaymentStatus:    enums.PaymentStatusPending,
			PaymentMethod:    method,
			PaymentIntentRef: lock.PaymentIntentRef,
			IsPickup:         cart.IsPickup,
			ShippingAddress:  cart.ShippingAddress,
			SubtotalCents:    lock.SubtotalCents,
			ShippingFeeCents: lock.ShippingFeeCents,
			TaxCents:         lock.TaxCents,
			TotalCents:       lock.TotalCents,
			Items:            items,
		}
		if _, err := orders.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "idx_orders_payment_intent", "orders.payment_intent_ref") {
				// a concurrent replay with the same intent beat us
				if lock.PaymentIntentRef != nil {
					if existing, ferr := orders.FindOrderByIntentRef(ctx, *lock.PaymentIntentRef); ferr == nil {
						result = orderResult(existing, true)
						return nil
					}
				}
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting order")
		}

		for _, res := range lock.Reservations {
			line := stockledger.Line{ProductID: res.ProductID, VariantID: res.VariantID, Quantity: res.Quantity}
			if err := stockledger.Decrement(ctx, tx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing stock")
			}
		}

		if err := carts.ClearCart(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
		}

		result = orderResult(order, false)
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if !result.Existing && order != nil && order.PaymentIntentRef != nil && s.gateway != nil {
		s.reconcileFreshOrder(ctx, order, now)
		result.Status = order.Status
		result.PaymentStatus = order.PaymentStatus
	}
	return result, nil
}

// reconcileFreshOrder closes the race where the gateway confirmed the payment
// before the order row existed, so the webhook found nothing to update.
func (s *service) reconcileFreshOrder(ctx context.Context, order *models.Order, now time.Time) {
	status, err := s.gateway.RetrieveStatus(ctx, *order.PaymentIntentRef)
	if err != nil {
		if s.log != nil {
			s.log.Warn(s.log.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("post-commit intent check failed: %v", err))
		}
		return
	}
	if status != pkgstripe.IntentStatusSucceeded {
		return
	}
	updates := map[string]any{
		"status":         enums.OrderStatusPaid,
		"payment_status": enums.PaymentStatusCompleted,
		"paid_at":        now,
	}
	if err := s.orders.UpdateOrder(ctx, order.ID, updates); err != nil {
		if s.log != nil {
			s.log.Warn(s.log.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("marking order paid failed: %v", err))
		}
		return
	}
	order.Status = enums.OrderStatusPaid
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.PaidAt = &now
}

func (s *service) findExistingOrder(ctx context.Context, tx *gorm.DB, token string) *models.Order {
	lock, err := s.carts.WithTx(tx).FindLockByToken(ctx, token)
	if err != nil {
		return nil
	}
	order, err := s.orders.WithTx(tx).FindOrderByLockID(ctx, lock.ID)
	if err != nil {
		return nil
	}
	return order
}

func (s *service) buildOrderItems(ctx context.Context, tx *gorm.DB, reservations []models.StockReservation) ([]models.OrderItem, error) {
	ids := make([]uuid.UUID, 0, len(reservations))
	for _, res := range reservations {
		ids = append(ids, res.ProductID)
	}
	products, err := s.catalog.WithTx(tx).FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(reservations))
	for _, res := range reservations {
		product := byID[res.ProductID]
		var variantName *string
		if res.VariantID != nil {
			if _, variant, err := catalog.ResolveLine(product, res.VariantID); err == nil && variant != nil {
				name := variant.Name
				variantName = &name
			}
		}
		items = append(items, models.OrderItem{
			ProductID:      res.ProductID,
			VariantID:      res.VariantID,
			ProductName:    product.Name,
			VariantName:    variantName,
			Quantity:       res.Quantity,
			UnitPriceCents: res.UnitPriceCents,
		})
	}
	return items, nil
}

func orderResult(order *models.Order, existing bool) *OrderResult {
	return &OrderResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Existing:      existing,
	}
}

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func generateOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("SF-%s-%s", now.Format("20060102"), orderNumberEncoding.EncodeToString(buf)), nil
}
