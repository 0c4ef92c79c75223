package model

import "time"

// Product is a catalog entry offered for reservation.  A product owns a
// set of variants; stock is tracked per variant, never on the product
// itself.  This struct corresponds to a row in the `products` table.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – display name shown to customers.
//  Slug        – unique URL-friendly identifier.
//  Description – optional marketing text.
//  Category    – optional category used by catalog filters.
//  PriceCents  – current price in cents; reservations snapshot this value.
//  Images      – image URLs, stored as a JSON array.
//  IsActive    – inactive products are hidden from the public catalog.
type Product struct {
	ID          uint64    // products.id
	Name        string    // products.name
	Slug        string    // products.slug
	Description *string   // products.description (nullable)
	Category    *string   // products.category (nullable)
	PriceCents  int64     // products.price_cents
	Images      []string  // products.images (JSON column)
	IsActive    bool      // products.is_active
	Variants    []Variant // loaded from product_variants
	CreatedAt   time.Time // products.created_at
	UpdatedAt   time.Time // products.updated_at
}

// Variant is a sellable unit of a product (a size/color combination).
// The two stock pools are the heart of the reservation engine:
// StockAvailable counts units customers can still reserve and
// StockLocked counts units currently held by active reservations.
// Their sum equals the total owned units and must never go negative.
// Variant counters are mutated exclusively through the ledger
// operations on VariantRepo; reservation code never edits them directly.
type Variant struct {
	ID                uint64    // product_variants.id
	ProductID         uint64    // product_variants.product_id
	SKU               string    // product_variants.sku (unique, immutable)
	Size              string    // product_variants.size
	Color             string    // product_variants.color
	StockAvailable    int       // product_variants.stock_available
	StockLocked       int       // product_variants.stock_locked
	LowStockThreshold int       // product_variants.low_stock_threshold
	CreatedAt         time.Time // product_variants.created_at
	UpdatedAt         time.Time // product_variants.updated_at
}

// LowStock reports whether the available pool has fallen to or below
// the variant's configured threshold.  Used by catalog payloads to
// drive the storefront's stock badge.
func (v Variant) LowStock() bool {
	return v.StockAvailable <= v.LowStockThreshold
}
