package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelshop/reservation-api/internal/model"
)

// ProductRepo provides catalog access: product CRUD for admins and
// filtered listing for the public storefront.  Stock counters are read
// here but never written; all counter mutations go through VariantRepo.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a new ProductRepo bound to the given database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// DB exposes the underlying handle so handlers can open transactions
// spanning multiple repositories.
func (r *ProductRepo) DB() *sql.DB { return r.db }

// ProductFilter narrows List results.  Zero values mean "no filter".
// Page is 1-based; Limit caps the page size.
type ProductFilter struct {
	Category   string
	Size       string
	Color      string
	MinPrice   int64 // cents; 0 = unbounded
	MaxPrice   int64 // cents; 0 = unbounded
	Query      string
	OnlyActive bool
	Page       int
	Limit      int
}

// Create inserts a product together with its variants in one
// transaction.  The generated ID is populated on the passed struct.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	const q = `INSERT INTO products (name, slug, description, category, price_cents, images, is_active)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.Name, p.Slug, p.Description, p.Category, p.PriceCents, images, p.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	if err := upsertVariantsTx(ctx, tx, p.ID, p.Variants); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Update rewrites a product's catalog fields and upserts its variants.
// Stock counters are deliberately excluded from the upsert: a catalog
// edit must never overwrite what the ledger has locked.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	images, err := json.Marshal(p.Images)
	if err != nil {
		return err
	}
	const q = `UPDATE products
	           SET name = ?, slug = ?, description = ?, category = ?, price_cents = ?, images = ?, is_active = ?
	           WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, p.Name, p.Slug, p.Description, p.Category, p.PriceCents, images, p.IsActive, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing row from a no-op update.
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, p.ID).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		} else if err != nil {
			return err
		}
	}
	if err := upsertVariantsTx(ctx, tx, p.ID, p.Variants); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// upsertVariantsTx inserts new variants and updates the attributes of
// existing ones.  ON DUPLICATE KEY leaves stock_available/stock_locked
// untouched for rows that already exist; initial stock is only honored
// on first insert.
func upsertVariantsTx(ctx context.Context, tx *sql.Tx, productID uint64, variants []model.Variant) error {
	if len(variants) == 0 {
		return nil
	}
	const q = `INSERT INTO product_variants (product_id, sku, size, color, stock_available, stock_locked, low_stock_threshold)
	           VALUES (?, ?, ?, ?, ?, 0, ?)
	           ON DUPLICATE KEY UPDATE size = VALUES(size), color = VALUES(color), low_stock_threshold = VALUES(low_stock_threshold)`
	for _, v := range variants {
		if _, err := tx.ExecContext(ctx, q, productID, v.SKU, v.Size, v.Color, v.StockAvailable, v.LowStockThreshold); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a product and, via the foreign key cascade, its
// variants.  Historical reservations keep their snapshots and are not
// affected.
func (r *ProductRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetByID loads a product and its variants.  Returns ErrProductNotFound
// when no row exists.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	const q = `SELECT id, name, slug, description, category, price_cents, images, is_active, created_at, updated_at
	           FROM products WHERE id = ?`
	p, err := scanProduct(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	var images []byte
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Category,
		&p.PriceCents, &images, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *ProductRepo) loadVariants(ctx context.Context, p *model.Product) error {
	const q = `SELECT ` + variantCols + ` FROM product_variants WHERE product_id = ? ORDER BY sku`
	rows, err := r.db.QueryContext(ctx, q, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var v model.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Size, &v.Color,
			&v.StockAvailable, &v.StockLocked, &v.LowStockThreshold,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return err
		}
		p.Variants = append(p.Variants, v)
	}
	return rows.Err()
}

// List returns products matching the filter plus the total match count
// for pagination.  Size and color filters match products having at least
// one variant with that attribute, mirroring the storefront's facets.
func (r *ProductRepo) List(ctx context.Context, f ProductFilter) ([]model.Product, int, error) {
	where := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)
	if f.OnlyActive {
		where = append(where, "p.is_active = TRUE")
	}
	if f.Category != "" {
		where = append(where, "p.category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		where = append(where, "p.name LIKE ?")
		args = append(args, "%"+f.Query+"%")
	}
	if f.MinPrice > 0 {
		where = append(where, "p.price_cents >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "p.price_cents <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.Size != "" {
		where = append(where, "EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id AND v.size = ?)")
		args = append(args, f.Size)
	}
	if f.Color != "" {
		where = append(where, "EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id AND v.color = ?)")
		args = append(args, f.Color)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	q := `SELECT p.id, p.name, p.slug, p.description, p.category, p.price_cents, p.images, p.is_active, p.created_at, p.updated_at
	      FROM products p` + clause + ` ORDER BY p.created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range products {
		if err := r.loadVariants(ctx, &products[i]); err != nil {
			return nil, 0, err
		}
	}
	return products, total, nil
}

// FindVariant resolves a (productID, sku) pair to the owning product and
// the variant itself.  It is the catalog read used by the inventory
// coordinator to validate lines and capture price/name snapshots.
func (r *ProductRepo) FindVariant(ctx context.Context, productID uint64, sku string) (*model.Product, *model.Variant, error) {
	p, err := r.GetByID(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return p, &p.Variants[i], nil
		}
	}
	return nil, nil, ErrVariantNotFound
}
