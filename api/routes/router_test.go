package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/storefront-backend/internal/cartlock"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	stripewebhook "github.com/mercaline/storefront-backend/internal/webhooks/stripe"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/redis"
	"github.com/mercaline/storefront-backend/pkg/stripe"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubLockService struct{}

func (stubLockService) Create(ctx context.Context, cartID uuid.UUID) (*cartlock.LockResult, error) {
	return &cartlock.LockResult{Token: "lock_stub", Status: enums.LockStatusActive}, nil
}

func (stubLockService) Extend(ctx context.Context, token string) (*cartlock.LockResult, error) {
	return &cartlock.LockResult{Token: token, Status: enums.LockStatusActive}, nil
}

func (stubLockService) Release(ctx context.Context, token string) error {
	return nil
}

func (stubLockService) Consume(ctx context.Context, tx *gorm.DB, token string) (*models.CartLock, error) {
	panic("unimplemented")
}

func (stubLockService) Sweep(ctx context.Context) (int64, error) {
	return 0, nil
}

func (stubLockService) UpdatePaymentMethod(ctx context.Context, cartID uuid.UUID, method string) error {
	return nil
}

type stubOrderService struct{}

func (stubOrderService) CreateOrder(ctx context.Context, token string) (*checkoutsvc.OrderResult, error) {
	return &checkoutsvc.OrderResult{OrderID: uuid.New(), OrderNumber: "SF-20260831-AAAAAAA2"}, nil
}

type stubOrderRepo struct{}

func (s stubOrderRepo) WithTx(tx *gorm.DB) checkoutsvc.Repository { return s }

func (stubOrderRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrderRepo) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (stubOrderRepo) FindOrderByLockID(ctx context.Context, lockID uuid.UUID) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrderRepo) FindOrderByIntentRef(ctx context.Context, ref string) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrderRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	panic("unimplemented")
}

func (stubOrderRepo) TransitionPayment(ctx context.Context, orderID uuid.UUID, from []enums.PaymentStatus, updates map[string]any) (bool, error) {
	panic("unimplemented")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*redis.Client)(nil),
		stubLockService{},
		stubOrderService{},
		stubOrderRepo{},
		(*stripe.Client)(nil),
		(*stripewebhook.Service)(nil),
		(*stripewebhook.IdempotencyGuard)(nil),
	)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if env := resp.Header().Get("X-Mercaline-Env"); env != "test" {
		t.Fatalf("expected env header, got %q", env)
	}
}

func TestPublicPing(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/public/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCheckoutLockRouteWired(t *testing.T) {
	router := newTestRouter(testConfig())
	body := `{"cart_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/lock", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestOrderCreateRouteWired(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"lock_token":"lock_stub"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestOrderDetailRouteWired(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestStripeWebhookRequiresSignature(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature got %d", resp.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
