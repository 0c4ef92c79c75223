package repository // repository for variant stock persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/angelshop/reservation-api/internal/model"
)

// VariantRepo is the stock ledger: it owns the two per-variant counters
// stock_available and stock_locked and exposes the only operations that
// may mutate them.  Every operation is a single guarded UPDATE, so each
// adjustment is an atomic read-modify-write at the storage level and
// remains safe when several server instances run concurrently.  The
// ledger knows nothing about reservations.
type VariantRepo struct {
	db *sql.DB
}

// NewVariantRepo constructs a VariantRepo given a DB handle.
func NewVariantRepo(db *sql.DB) *VariantRepo {
	return &VariantRepo{db: db}
}

// variantCols is the SELECT list shared by the scan helpers below.
const variantCols = `id, product_id, sku, size, color, stock_available, stock_locked, low_stock_threshold, created_at, updated_at`

func (r *VariantRepo) getBySKU(ctx context.Context, productID uint64, sku string) (*model.Variant, error) {
	const q = `SELECT ` + variantCols + ` FROM product_variants WHERE product_id = ? AND sku = ?`
	var v model.Variant
	err := r.db.QueryRowContext(ctx, q, productID, sku).Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Size, &v.Color,
		&v.StockAvailable, &v.StockLocked, &v.LowStockThreshold,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Find returns the current state of a variant's counters together with
// its attributes.  It is the catalog lookup used by the inventory
// coordinator's validation pass.
func (r *VariantRepo) Find(ctx context.Context, productID uint64, sku string) (*model.Variant, error) {
	return r.getBySKU(ctx, productID, sku)
}

// Lock atomically moves qty units from the available pool to the locked
// pool.  The WHERE clause guards against oversell: if two requests race
// for the last units, the database serializes the updates and the guard
// rejects the loser.  Returns ErrInsufficientStock when the available
// pool is too small and ErrVariantNotFound when the variant does not
// exist; in both cases no counter changes.
func (r *VariantRepo) Lock(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	const q = `UPDATE product_variants
	           SET stock_available = stock_available - ?,
	               stock_locked    = stock_locked + ?
	           WHERE product_id = ? AND sku = ? AND stock_available >= ?`
	res, err := r.db.ExecContext(ctx, q, qty, qty, productID, sku, qty)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Guard failed: either the variant is missing or the pool is
		// short.  Re-read to tell the two apart.
		if _, findErr := r.getBySKU(ctx, productID, sku); findErr != nil {
			return nil, findErr
		}
		return nil, ErrInsufficientStock
	}
	return r.getBySKU(ctx, productID, sku)
}

// Unlock returns up to qty units from the locked pool to the available
// pool.  The transfer is clamped to the units actually locked, so the
// operation never fails logically and calling it twice for the same
// release cannot inflate the available pool.  This makes it safe to call
// from both the interactive cancel path and the unattended expiration
// sweep without coordination between them.
func (r *VariantRepo) Unlock(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	const q = `UPDATE product_variants
	           SET stock_available = stock_available + LEAST(stock_locked, ?),
	               stock_locked    = stock_locked - LEAST(stock_locked, ?)
	           WHERE product_id = ? AND sku = ?`
	if _, err := r.db.ExecContext(ctx, q, qty, qty, productID, sku); err != nil {
		return nil, err
	}
	return r.getBySKU(ctx, productID, sku)
}

// Release removes up to qty units from the locked pool without returning
// them to availability.  Used when units are permanently consumed, i.e.
// a completed delivery.  Clamped like Unlock.
func (r *VariantRepo) Release(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	const q = `UPDATE product_variants
	           SET stock_locked = stock_locked - LEAST(stock_locked, ?)
	           WHERE product_id = ? AND sku = ?`
	if _, err := r.db.ExecContext(ctx, q, qty, productID, sku); err != nil {
		return nil, err
	}
	return r.getBySKU(ctx, productID, sku)
}

// AdjustAvailable applies a manual correction to the available pool,
// clamped at zero.  The locked pool is never touched: units held by
// reservations stay held.  Admin-only.
func (r *VariantRepo) AdjustAvailable(ctx context.Context, productID uint64, sku string, delta int) (*model.Variant, error) {
	const q = `UPDATE product_variants
	           SET stock_available = GREATEST(0, stock_available + ?)
	           WHERE product_id = ? AND sku = ?`
	if _, err := r.db.ExecContext(ctx, q, delta, productID, sku); err != nil {
		return nil, err
	}
	// Zero affected rows can mean either "missing" or "value unchanged"
	// (a clamped negative delta on an empty pool); the re-read settles it.
	return r.getBySKU(ctx, productID, sku)
}
