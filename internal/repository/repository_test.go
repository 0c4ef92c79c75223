package repository

// Integration tests against a real MySQL instance.  They run the same
// guarded UPDATEs production runs, so the database-level behaviour
// (guard rejection, LEAST clamping, unique-index collisions) is tested
// for real instead of through fakes.  Set MYSQL_DSN to point at a
// database with migrations/001_init.sql applied; without a reachable
// server the tests skip.

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/reservation_api?parseTime=true&loc=UTC"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	return db
}

// seedVariant inserts a throwaway product with a single variant and
// returns the product ID.  The product row is removed on cleanup; the
// variant follows via ON DELETE CASCADE.
func seedVariant(t *testing.T, db *sql.DB, sku string, available, locked int) uint64 {
	t.Helper()
	slug := fmt.Sprintf("it-%s-%d", sku, time.Now().UnixNano())
	res, err := db.Exec(
		`INSERT INTO products (name, slug, price_cents, images) VALUES (?, ?, ?, '[]')`,
		"integration test product", slug, 1000,
	)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed product id: %v", err)
	}
	productID := uint64(id)
	if _, err := db.Exec(
		`INSERT INTO product_variants (product_id, sku, stock_available, stock_locked) VALUES (?, ?, ?, ?)`,
		productID, sku, available, locked,
	); err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM products WHERE id = ?`, productID)
	})
	return productID
}

// newTestCode returns a reservation code that is unique across runs and
// fits the 16-character column.
func newTestCode() string {
	return fmt.Sprintf("IT%08X", time.Now().UnixNano()&0xFFFFFFFF)
}
