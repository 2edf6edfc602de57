package stockledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercaline/storefront-backend/pkg/db/models"
	"github.com/mercaline/storefront-backend/pkg/enums"
)

// Line identifies one stock pool and a quantity against it. A nil VariantID
// addresses the product-level pool; otherwise the variant pool governs.
type Line struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// LockRows takes row locks on every product referenced by the lines so that
// concurrent availability checks serialize. IDs are sorted to keep lock order
// stable across transactions. SQLite has a single writer, so the clause is
// only emitted on Postgres.
func LockRows(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}

	ids := lockTargets(lines)
	query := tx.WithContext(ctx).Model(&models.Product{}).Where("id IN ?", ids)
	if locking := rowLockClauses(tx.Dialector.Name()); len(locking) > 0 {
		query = query.Clauses(locking...)
	}

	var locked []uuid.UUID
	if err := query.Pluck("id", &locked).Error; err != nil {
		return fmt.Errorf("locking product rows: %w", err)
	}
	if len(locked) != len(ids) {
		return fmt.Errorf("expected %d products, found %d", len(ids), len(locked))
	}
	return nil
}

// lockTargets dedupes the product IDs and sorts them so every transaction
// takes its locks in the same order.
func lockTargets(lines []Line) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// rowLockClauses picks the locking clause for the dialect. Postgres gets
// SELECT ... FOR UPDATE; SQLite has a single writer and rejects the syntax.
func rowLockClauses(dialect string) []clause.Expression {
	if dialect == "postgres" {
		return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
	}
	return nil
}

// OnHand returns the raw stock counter for the line's pool. Missing rows
// surface gorm.ErrRecordNotFound.
func OnHand(ctx context.Context, tx *gorm.DB, line Line) (int, error) {
	var row struct{ Stock int }
	if line.VariantID != nil {
		err := tx.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Select("stock").
			Where("id = ? AND product_id = ?", *line.VariantID, line.ProductID).
			Take(&row).Error
		if err != nil {
			return 0, err
		}
		return row.Stock, nil
	}
	err := tx.WithContext(ctx).
		Model(&models.Product{}).
		Select("stock").
		Where("id = ?", line.ProductID).
		Take(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Stock, nil
}

// Reserved sums the quantities held by reservations of active, unexpired
// locks against the line's pool. Reservations belonging to excludeLock are
// ignored so a lock can re-validate itself.
func Reserved(ctx context.Context, tx *gorm.DB, line Line, excludeLock uuid.UUID, now time.Time) (int, error) {
	query := tx.WithContext(ctx).
		Model(&models.StockReservation{}).
		Joins("JOIN cart_locks ON cart_locks.id = stock_reservations.lock_id").
		Where("stock_reservations.product_id = ?", line.ProductID).
		Where("cart_locks.status = ?", enums.LockStatusActive).
		Where("cart_locks.expires_at > ?", now)
	if line.VariantID != nil {
		query = query.Where("stock_reservations.variant_id = ?", *line.VariantID)
	} else {
		query = query.Where("stock_reservations.variant_id IS NULL")
	}
	if excludeLock != uuid.Nil {
		query = query.Where("stock_reservations.lock_id <> ?", excludeLock)
	}

	var total sql.NullInt64
	if err := query.Select("SUM(stock_reservations.quantity)").Scan(&total).Error; err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// Available is the quantity a new lock may still claim: on-hand stock minus
// everything held by other active locks. Never negative.
func Available(ctx context.Context, tx *gorm.DB, line Line, excludeLock uuid.UUID, now time.Time) (int, error) {
	onHand, err := OnHand(ctx, tx, line)
	if err != nil {
		return 0, err
	}
	reserved, err := Reserved(ctx, tx, line, excludeLock, now)
	if err != nil {
		return 0, err
	}
	available := onHand - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

// Decrement burns on-hand stock for a consumed reservation. The decrement is
// clamped at zero and the in-stock flag is refreshed in the same statement.
func Decrement(ctx context.Context, tx *gorm.DB, line Line) error {
	if line.Quantity <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", line.Quantity)
	}
	if line.VariantID != nil {
		return tx.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", *line.VariantID, line.ProductID).
			Updates(map[string]any{
				"stock":       gorm.Expr("CASE WHEN stock >= ? THEN stock - ? ELSE 0 END", line.Quantity, line.Quantity),
				"is_in_stock": gorm.Expr("stock > ?", line.Quantity),
			}).Error
	}
	return tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", line.ProductID).
		Updates(map[string]any{
			"stock":       gorm.Expr("CASE WHEN stock >= ? THEN stock - ? ELSE 0 END", line.Quantity, line.Quantity),
			"is_in_stock": gorm.Expr("stock > ?", line.Quantity),
		}).Error
}

// Restore returns stock to the pool, e.g. after a failed payment.
func Restore(ctx context.Context, tx *gorm.DB, line Line) error {
	if line.Quantity <= 0 {
		return fmt.Errorf("restore quantity must be positive, got %d", line.Quantity)
	}
	if line.VariantID != nil {
		return tx.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", *line.VariantID, line.ProductID).
			Updates(map[string]any{
				"stock":       gorm.Expr("stock + ?", line.Quantity),
				"is_in_stock": gorm.Expr("stock + ? > 0", line.Quantity),
			}).Error
	}
	return tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", line.ProductID).
		Updates(map[string]any{
			"stock":       gorm.Expr("stock + ?", line.Quantity),
			"is_in_stock": gorm.Expr("stock + ? > 0", line.Quantity),
		}).Error
}
