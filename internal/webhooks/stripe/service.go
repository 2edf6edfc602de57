package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/checkout"
	"github.com/mercaline/storefront-backend/internal/stockledger"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	pkgerrors "github.com/mercaline/storefront-backend/pkg/errors"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"

	"github.com/google/uuid"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams collects the reconciler's dependencies.
type ServiceParams struct {
	OrderRepo         checkout.Repository
	TransactionRunner txRunner
	Metrics           *metrics.CheckoutMetrics
	Logger            *logger.Logger
}

// Service applies payment gateway events onto orders. Deliveries are
// at-least-once and unordered, so every transition is conditional.
type Service struct {
	orders   checkout.Repository
	txRunner txRunner
	metrics  *metrics.CheckoutMetrics
	log      *logger.Logger
	now      func() time.Time
}

// NewService wires the payment reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		orders:   params.OrderRepo,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		log:      params.Logger,
		now:      time.Now,
	}, nil
}

// HandleEvent routes a verified gateway event. Unknown event types and events
// for unknown orders are dropped, not errored: the gateway should not retry
// what we will never apply.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return s.handleIntentEvent(ctx, event, s.applyPaymentSucceeded)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.handleIntentEvent(ctx, event, s.applyPaymentFailed)
	case stripe.EventTypeChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	default:
		return nil
	}
}

func (s *Service) handleIntentEvent(ctx context.Context, event *stripe.Event, apply func(ctx context.Context, tx *gorm.DB, order *models.Order) (string, bool, error)) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	return s.reconcile(ctx, string(event.Type), intent.ID, intent.Metadata, apply)
}

func (s *Service) handleChargeRefunded(ctx context.Context, event *stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
	}
	intentRef := ""
	if charge.PaymentIntent != nil {
		intentRef = charge.PaymentIntent.ID
	}
	return s.reconcile(ctx, string(event.Type), intentRef, charge.Metadata, s.applyRefund)
}

func (s *Service) reconcile(ctx context.Context, eventType, intentRef string, metadata map[string]string, apply func(ctx context.Context, tx *gorm.DB, order *models.Order) (string, bool, error)) error {
	outcome := "dropped"
	var restockOrder *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.locateOrder(ctx, tx, intentRef, metadata)
		if err != nil {
			return err
		}
		if order == nil {
			if s.log != nil {
				s.log.Warn(ctx, fmt.Sprintf("%s: no order for intent %q, dropping", eventType, intentRef))
			}
			return nil
		}
		applyCtx := ctx
		if s.log != nil {
			applyCtx = s.log.WithOrderID(ctx, order.ID.String())
		}
		var restock bool
		outcome, restock, err = apply(applyCtx, tx, order)
		if err == nil && restock {
			restockOrder = order
		}
		return err
	})
	if err == nil && restockOrder != nil {
		// the status write is committed; restocking happens in its own
		// transactions so a ledger failure cannot unwind it
		s.restoreOrderStock(ctx, restockOrder)
	}
	s.metrics.IncWebhookEvent(eventType, outcome)
	return err
}

// locateOrder resolves the order by intent ref first, falling back to an
// order_id carried in the gateway metadata.
func (s *Service) locateOrder(ctx context.Context, tx *gorm.DB, intentRef string, metadata map[string]string) (*models.Order, error) {
	orders := s.orders.WithTx(tx)
	if intentRef != "" {
		order, err := orders.FindOrderByIntentRef(ctx, intentRef)
		if err == nil {
			return order, nil
		}
		if !isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding order by intent ref")
		}
	}
	if raw, ok := metadata["order_id"]; ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, nil
		}
		order, err := orders.FindOrderByID(ctx, id)
		if err == nil {
			return order, nil
		}
		if !isNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finding order by metadata id")
		}
	}
	return nil, nil
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, order *models.Order) (string, bool, error) {
	now := s.now().UTC()
	flipped, err := s.orders.WithTx(tx).TransitionPayment(ctx, order.ID,
		[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		map[string]any{
			"status":         enums.OrderStatusPaid,
			"payment_status": enums.PaymentStatusCompleted,
			"paid_at":        now,
		})
	if err != nil {
		return "error", false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order paid")
	}
	if !flipped {
		return "duplicate", false, nil
	}
	if s.log != nil {
		s.log.Info(ctx, "order marked paid")
	}
	return "applied", false, nil
}

func (s *Service) applyPaymentFailed(ctx context.Context, tx *gorm.DB, order *models.Order) (string, bool, error) {
	flipped, err := s.orders.WithTx(tx).TransitionPayment(ctx, order.ID,
		[]enums.PaymentStatus{enums.PaymentStatusPending},
		map[string]any{
			"status":         enums.OrderStatusFailed,
			"payment_status": enums.PaymentStatusFailed,
		})
	if err != nil {
		return "error", false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order failed")
	}
	if !flipped {
		// a success already landed; never clobber a paid order
		return "duplicate", false, nil
	}
	return "applied", true, nil
}

// applyRefund marks the order refunded. Stock stays off the shelf: refunded
// units are handled by the returns flow, not the payment reconciler.
func (s *Service) applyRefund(ctx context.Context, tx *gorm.DB, order *models.Order) (string, bool, error) {
	flipped, err := s.orders.WithTx(tx).TransitionPayment(ctx, order.ID,
		[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusCompleted},
		map[string]any{
			"status":         enums.OrderStatusRefunded,
			"payment_status": enums.PaymentStatusRefunded,
		})
	if err != nil {
		return "error", false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order refunded")
	}
	if !flipped {
		return "duplicate", false, nil
	}
	return "applied", false, nil
}

// restoreOrderStock puts the order's units back on the shelf after the status
// write has committed. Each line runs in its own transaction; failures are
// logged and never unwind the order status, since the ledger can be fixed by
// hand and a wrong order status cannot.
func (s *Service) restoreOrderStock(ctx context.Context, order *models.Order) {
	for _, item := range order.Items {
		line := stockledger.Line{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: item.Quantity}
		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			return stockledger.Restore(ctx, tx, line)
		})
		if err != nil && s.log != nil {
			s.log.Error(ctx, fmt.Sprintf("restoring stock for product %s", item.ProductID), err)
		}
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
