package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
)

// LineRequest is one requested reservation line as submitted by a
// customer: which variant and how many units.
type LineRequest struct {
	ProductID  uint64 `json:"product_id"`
	VariantSKU string `json:"variant_sku"`
	Qty        int    `json:"qty"`
}

// ReleaseDirection selects what ReleaseAll does with locked units.
type ReleaseDirection int

const (
	// DirectionUnlock returns units to the available pool (cancel, expire).
	DirectionUnlock ReleaseDirection = iota
	// DirectionRelease consumes units permanently (completed delivery).
	DirectionRelease
)

// InventoryService is the inventory coordinator: it applies ledger
// operations to every line of a reservation as one logical unit.  It
// validates all lines before mutating any variant, so a rejected
// reservation leaves no trace in the ledger.
type InventoryService struct {
	catalog Catalog
	ledger  VariantLedger
	log     zerolog.Logger
}

// NewInventoryService constructs the coordinator.
func NewInventoryService(catalog Catalog, ledger VariantLedger, log zerolog.Logger) *InventoryService {
	return &InventoryService{catalog: catalog, ledger: ledger, log: log}
}

// ReserveAll locks stock for every line and returns enriched item
// snapshots carrying the current catalog price, name and variant
// attributes.  The call is all-or-nothing: every line is validated
// against current catalog state before any ledger mutation, and if a
// later line's lock still fails (a concurrent reservation drained the
// pool between validation and commit), locks already taken are unwound
// before returning.  Errors name the offending line and wrap one of
// ErrInvalidQuantity, repository.ErrProductNotFound,
// repository.ErrVariantNotFound or repository.ErrInsufficientStock.
func (s *InventoryService) ReserveAll(ctx context.Context, lines []LineRequest) ([]model.ReservationItem, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}
	// Validation pass: no mutation yet.
	items := make([]model.ReservationItem, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("sku %s: %w", line.VariantSKU, ErrInvalidQuantity)
		}
		product, variant, err := s.catalog.FindVariant(ctx, line.ProductID, line.VariantSKU)
		if err != nil {
			return nil, fmt.Errorf("sku %s: %w", line.VariantSKU, err)
		}
		if variant.StockAvailable < line.Qty {
			return nil, fmt.Errorf("sku %s: %w", line.VariantSKU, repository.ErrInsufficientStock)
		}
		items = append(items, model.ReservationItem{
			ProductID:          product.ID,
			VariantSKU:         variant.SKU,
			Qty:                line.Qty,
			PriceSnapshotCents: product.PriceCents,
			NameSnapshot:       product.Name,
			Size:               variant.Size,
			Color:              variant.Color,
		})
	}
	// Commit pass: lock line by line.  Each Lock is individually atomic,
	// so a concurrent reservation can still win a race for the last
	// units; in that case compensate by unlocking what this call took.
	for i, it := range items {
		if _, err := s.ledger.Lock(ctx, it.ProductID, it.VariantSKU, it.Qty); err != nil {
			s.compensate(ctx, items[:i])
			return nil, fmt.Errorf("sku %s: %w", it.VariantSKU, err)
		}
	}
	return items, nil
}

// compensate unwinds locks taken earlier in a failed ReserveAll.  Unlock
// is clamped and cannot fail logically; storage errors are logged and
// skipped so the remaining lines still get their units back.
func (s *InventoryService) compensate(ctx context.Context, locked []model.ReservationItem) {
	for _, it := range locked {
		if _, err := s.ledger.Unlock(ctx, it.ProductID, it.VariantSKU, it.Qty); err != nil {
			s.log.Error().Err(err).
				Str("sku", it.VariantSKU).
				Int("qty", it.Qty).
				Msg("compensating unlock failed")
		}
	}
}

// ReleaseAll applies the clamped unlock (or release) operation to every
// line.  It never fails: unlock and release cannot fail logically, and
// storage errors on one line are logged without stopping the rest.
// Safe to call more than once for the same reservation because the
// underlying operations clamp at zero.
func (s *InventoryService) ReleaseAll(ctx context.Context, items []model.ReservationItem, dir ReleaseDirection) {
	for _, it := range items {
		var err error
		if dir == DirectionRelease {
			_, err = s.ledger.Release(ctx, it.ProductID, it.VariantSKU, it.Qty)
		} else {
			_, err = s.ledger.Unlock(ctx, it.ProductID, it.VariantSKU, it.Qty)
		}
		if err != nil {
			s.log.Error().Err(err).
				Str("sku", it.VariantSKU).
				Int("qty", it.Qty).
				Msg("stock release failed; counters will be off until retried")
		}
	}
}
