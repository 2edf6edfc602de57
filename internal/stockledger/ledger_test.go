package stockledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stockledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.ProductVariant{}, &models.CartLock{}, &models.StockReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:       "Walnut Desk",
		SKU:        "SKU-" + uuid.NewString(),
		PriceCents: 45000,
		Stock:      stock,
		IsInStock:  stock > 0,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedLockWithReservation(t *testing.T, db *gorm.DB, productID uuid.UUID, qty int, status enums.LockStatus, expiresAt time.Time) models.CartLock {
	t.Helper()
	lock := models.CartLock{
		CartID:     uuid.New(),
		Token:      "lock_" + uuid.NewString(),
		Status:     status,
		TotalCents: qty * 45000,
		ExpiresAt:  expiresAt,
		Reservations: []models.StockReservation{
			{ProductID: productID, Quantity: qty, UnitPriceCents: 45000},
		},
	}
	if err := db.Create(&lock).Error; err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	return lock
}

func TestAvailable_SubtractsActiveUnexpiredHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	product := seedProduct(t, db, 3)
	line := Line{ProductID: product.ID}

	seedLockWithReservation(t, db, product.ID, 2, enums.LockStatusActive, now.Add(5*time.Minute))
	seedLockWithReservation(t, db, product.ID, 1, enums.LockStatusActive, now.Add(-time.Minute))
	seedLockWithReservation(t, db, product.ID, 1, enums.LockStatusUsed, now.Add(5*time.Minute))
	seedLockWithReservation(t, db, product.ID, 1, enums.LockStatusCancelled, now.Add(5*time.Minute))

	available, err := Available(ctx, db, line, uuid.Nil, now)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 1 {
		t.Fatalf("expected 1 available, got %d", available)
	}
}

func TestAvailable_ExcludesOwnLock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	product := seedProduct(t, db, 3)
	line := Line{ProductID: product.ID}

	own := seedLockWithReservation(t, db, product.ID, 3, enums.LockStatusActive, now.Add(5*time.Minute))

	available, err := Available(ctx, db, line, uuid.Nil, now)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 0 {
		t.Fatalf("expected 0 available with hold counted, got %d", available)
	}

	available, err = Available(ctx, db, line, own.ID, now)
	if err != nil {
		t.Fatalf("available excluding own: %v", err)
	}
	if available != 3 {
		t.Fatalf("expected 3 available excluding own hold, got %d", available)
	}
}

func TestAvailable_VariantPoolIsSeparate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	product := seedProduct(t, db, 10)
	variant := models.ProductVariant{ProductID: product.ID, Name: "Brass", Stock: 2, IsInStock: true}
	if err := db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	lock := models.CartLock{
		CartID:     uuid.New(),
		Token:      "lock_" + uuid.NewString(),
		Status:     enums.LockStatusActive,
		TotalCents: 45000,
		ExpiresAt:  now.Add(5 * time.Minute),
		Reservations: []models.StockReservation{
			{ProductID: product.ID, VariantID: &variant.ID, Quantity: 1, UnitPriceCents: 45000},
		},
	}
	if err := db.Create(&lock).Error; err != nil {
		t.Fatalf("seed variant lock: %v", err)
	}

	variantAvailable, err := Available(ctx, db, Line{ProductID: product.ID, VariantID: &variant.ID}, uuid.Nil, now)
	if err != nil {
		t.Fatalf("variant available: %v", err)
	}
	if variantAvailable != 1 {
		t.Fatalf("expected 1 variant unit available, got %d", variantAvailable)
	}

	productAvailable, err := Available(ctx, db, Line{ProductID: product.ID}, uuid.Nil, now)
	if err != nil {
		t.Fatalf("product available: %v", err)
	}
	if productAvailable != 10 {
		t.Fatalf("expected variant hold not to touch product pool, got %d", productAvailable)
	}
}

func TestDecrement_ClampsAtZero(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := seedProduct(t, db, 2)
	line := Line{ProductID: product.ID, Quantity: 5}

	if err := Decrement(ctx, db, line); err != nil {
		t.Fatalf("decrement: %v", err)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 0 {
		t.Fatalf("expected clamped stock 0, got %d", reloaded.Stock)
	}
	if reloaded.IsInStock {
		t.Fatalf("expected product flagged out of stock")
	}
}

func TestDecrementRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := seedProduct(t, db, 5)
	line := Line{ProductID: product.ID, Quantity: 5}

	if err := Decrement(ctx, db, line); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := Restore(ctx, db, Line{ProductID: product.ID, Quantity: 2}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, "id = ?", product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.Stock != 2 {
		t.Fatalf("expected stock 2 after restore, got %d", reloaded.Stock)
	}
	if !reloaded.IsInStock {
		t.Fatalf("expected product back in stock")
	}
}

func TestDecrement_RejectsNonPositiveQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := seedProduct(t, db, 5)

	if err := Decrement(context.Background(), db, Line{ProductID: product.ID, Quantity: 0}); err == nil {
		t.Fatal("expected error for zero quantity")
	}
}

func TestOnHand_MissingRow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := OnHand(context.Background(), db, Line{ProductID: uuid.New()})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestLockRows_MissingProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := seedProduct(t, db, 1)

	lines := []Line{
		{ProductID: product.ID, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	}
	if err := LockRows(context.Background(), db, lines); err == nil {
		t.Fatal("expected error when a product row is missing")
	}
}

func TestLockTargets_DedupesAndOrders(t *testing.T) {
	t.Parallel()

	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	variant := uuid.New()

	ids := lockTargets([]Line{
		{ProductID: b, Quantity: 1},
		{ProductID: a, VariantID: &variant, Quantity: 2},
		{ProductID: b, Quantity: 3},
	})
	if len(ids) != 2 {
		t.Fatalf("targets = %d, want 2", len(ids))
	}
	if ids[0] != a || ids[1] != b {
		t.Fatalf("targets out of order: %v", ids)
	}
}

func TestRowLockClauses_PerDialect(t *testing.T) {
	t.Parallel()

	clauses := rowLockClauses("postgres")
	if len(clauses) != 1 {
		t.Fatalf("postgres clauses = %d, want 1", len(clauses))
	}
	locking, ok := clauses[0].(clause.Locking)
	if !ok || locking.Strength != "UPDATE" {
		t.Fatalf("postgres clause = %#v, want FOR UPDATE", clauses[0])
	}

	if clauses := rowLockClauses("sqlite"); len(clauses) != 0 {
		t.Fatalf("sqlite clauses = %d, want none", len(clauses))
	}
}
