package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/checkout"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	"github.com/mercaline/storefront-backend/pkg/metrics"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:webhook_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newReconciler(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		OrderRepo:         checkout.NewRepository(db),
		TransactionRunner: &gormTxRunner{db: db},
		Metrics:           metrics.NewCheckoutMetrics(nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedPaidableOrder(t *testing.T, db *gorm.DB, intentRef string, status enums.PaymentStatus) (models.Order, models.Product) {
	t.Helper()
	product := models.Product{
		Name:       "Walnut Desk",
		SKU:        "SKU-" + uuid.NewString(),
		PriceCents: 2500,
		Stock:      8,
		IsInStock:  true,
		IsActive:   true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	order := models.Order{
		OrderNumber:   "SF-20260314-" + uuid.NewString()[:8],
		CartID:        uuid.New(),
		LockID:        uuid.New(),
		Status:        enums.OrderStatusProcessingPayment,
		PaymentStatus: status,
		PaymentMethod: enums.PaymentMethodStripe,
		SubtotalCents: 5000,
		TotalCents:    5000,
		Items: []models.OrderItem{
			{ProductID: product.ID, ProductName: product.Name, Quantity: 2, UnitPriceCents: 2500},
		},
	}
	if intentRef != "" {
		order.PaymentIntentRef = &intentRef
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order, product
}

func intentEvent(t *testing.T, eventType stripe.EventType, intentID string, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": intentID, "metadata": metadata})
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString()[:8],
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func chargeRefundedEvent(t *testing.T, intentID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"id": "ch_1", "payment_intent": intentID})
	if err != nil {
		t.Fatalf("marshal charge: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString()[:8],
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: raw},
	}
}

func reloadOrder(t *testing.T, db *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := db.Where("id = ?", id).First(&order).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func productStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := db.Where("id = ?", id).First(&product).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product.Stock
}

func TestHandleEvent_PaymentSucceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)
	paidAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return paidAt }

	order, _ := seedPaidableOrder(t, db, "pi_ok", enums.PaymentStatusPending)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_ok", nil)
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.Status != enums.OrderStatusPaid || got.PaymentStatus != enums.PaymentStatusCompleted {
		t.Fatalf("order = %s/%s", got.Status, got.PaymentStatus)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("paid_at = %v", got.PaidAt)
	}
}

func TestHandleEvent_SucceededRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)
	first := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }

	order, _ := seedPaidableOrder(t, db, "pi_dup", enums.PaymentStatusPending)
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_dup", nil)
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	svc.now = func() time.Time { return first.Add(time.Hour) }
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.PaidAt == nil || !got.PaidAt.Equal(first) {
		t.Fatalf("redelivery moved paid_at to %v", got.PaidAt)
	}
}

func TestHandleEvent_FailureAfterSuccessIsIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	order, product := seedPaidableOrder(t, db, "pi_race", enums.PaymentStatusPending)
	if err := svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_race", nil)); err != nil {
		t.Fatalf("success: %v", err)
	}

	// the out-of-order failure from an earlier attempt arrives late
	if err := svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_race", nil)); err != nil {
		t.Fatalf("late failure: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.Status != enums.OrderStatusPaid || got.PaymentStatus != enums.PaymentStatusCompleted {
		t.Fatalf("paid order clobbered: %s/%s", got.Status, got.PaymentStatus)
	}
	if stock := productStock(t, db, product.ID); stock != 8 {
		t.Fatalf("stock = %d, want untouched 8", stock)
	}
}

func TestHandleEvent_FailedRestoresStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	order, product := seedPaidableOrder(t, db, "pi_fail", enums.PaymentStatusPending)
	if err := svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_fail", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.Status != enums.OrderStatusFailed || got.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("order = %s/%s", got.Status, got.PaymentStatus)
	}
	if stock := productStock(t, db, product.ID); stock != 10 {
		t.Fatalf("stock = %d, want 10", stock)
	}

	// the retry must not restore the units twice
	if err := svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_fail", nil)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if stock := productStock(t, db, product.ID); stock != 10 {
		t.Fatalf("stock after redelivery = %d, want 10", stock)
	}
}

func TestHandleEvent_FailedStatusSurvivesRestoreError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	order, _ := seedPaidableOrder(t, db, "pi_ledger_down", enums.PaymentStatusPending)

	// wreck the ledger so restoration cannot run; the status flip must
	// still commit
	if err := db.Migrator().DropTable(&models.Product{}); err != nil {
		t.Fatalf("drop products: %v", err)
	}

	if err := svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, "pi_ledger_down", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.Status != enums.OrderStatusFailed || got.PaymentStatus != enums.PaymentStatusFailed {
		t.Fatalf("order = %s/%s, want failed/failed despite ledger error", got.Status, got.PaymentStatus)
	}
}

func TestHandleEvent_ChargeRefunded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	order, product := seedPaidableOrder(t, db, "pi_refund", enums.PaymentStatusCompleted)
	if err := svc.HandleEvent(ctx, chargeRefundedEvent(t, "pi_refund")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := reloadOrder(t, db, order.ID)
	if got.Status != enums.OrderStatusRefunded || got.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("order = %s/%s", got.Status, got.PaymentStatus)
	}
	// refunds do not put units back on the shelf; that is the returns flow
	if stock := productStock(t, db, product.ID); stock != 8 {
		t.Fatalf("stock = %d, want untouched 8", stock)
	}
}

func TestHandleEvent_RefundAfterRefundIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	_, product := seedPaidableOrder(t, db, "pi_rr", enums.PaymentStatusCompleted)
	if err := svc.HandleEvent(ctx, chargeRefundedEvent(t, "pi_rr")); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if err := svc.HandleEvent(ctx, chargeRefundedEvent(t, "pi_rr")); err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if stock := productStock(t, db, product.ID); stock != 8 {
		t.Fatalf("stock = %d, want untouched 8", stock)
	}
}

func TestHandleEvent_MetadataFallbackLocatesOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	order, _ := seedPaidableOrder(t, db, "", enums.PaymentStatusPending)
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_meta", map[string]string{
		"order_id": order.ID.String(),
	})
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := reloadOrder(t, db, order.ID); got.PaymentStatus != enums.PaymentStatusCompleted {
		t.Fatalf("payment status = %s", got.PaymentStatus)
	}
}

func TestHandleEvent_UnknownOrderIsDropped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, "pi_nobody", map[string]string{
		"order_id": uuid.NewString(),
	})
	if err := svc.HandleEvent(ctx, event); err != nil {
		t.Fatalf("unknown order should drop, got %v", err)
	}
}

func TestHandleEvent_UnhandledTypeIgnored(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := newReconciler(t, db)

	event := &stripe.Event{
		ID:   "evt_other",
		Type: stripe.EventType("customer.created"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestHandleEvent_RequiresEventData(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	svc := newReconciler(t, db)
	if err := svc.HandleEvent(context.Background(), &stripe.Event{ID: "evt_empty"}); err == nil {
		t.Fatal("expected error for missing event data")
	}
}
