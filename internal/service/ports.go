// Package service contains the reservation engine: the inventory
// coordinator that moves stock atomically for multi-line reservations,
// the lifecycle manager that drives status transitions, and the
// expiration sweeper that reclaims stock from overdue holds.  External
// collaborators (catalog, storage, notifications, real-time broadcast)
// are consumed through the small interfaces below so the engine can be
// exercised in tests without MySQL, RabbitMQ or a websocket transport.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/angelshop/reservation-api/internal/model"
)

// Engine errors surfaced to the API boundary.  Storage-level not-found
// and insufficient-stock sentinels live in the repository package; these
// cover validation and lifecycle failures.
var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyItems        = errors.New("reservation requires at least one item")
	ErrUnauthorized      = errors.New("not authorized for this reservation")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyTerminal   = errors.New("reservation is already in a terminal state")
)

// Catalog resolves a (product, sku) pair to current catalog state.  The
// coordinator uses it to validate lines and capture price and name
// snapshots.  Implemented by repository.ProductRepo.
type Catalog interface {
	FindVariant(ctx context.Context, productID uint64, sku string) (*model.Product, *model.Variant, error)
}

// VariantLedger is the atomic stock ledger.  Lock fails without partial
// effect when stock is short; Unlock and Release are clamped and never
// fail logically.  Implemented by repository.VariantRepo.
type VariantLedger interface {
	Lock(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error)
	Unlock(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error)
	Release(ctx context.Context, productID uint64, sku string, qty int) (*model.Variant, error)
}

// ReservationStore is the durable reservation record store.
// TransitionStatus must be atomic with respect to concurrent writers:
// it applies the change only when the current status is in allowedFrom
// and reports whether it won.  Implemented by repository.ReservationRepo.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	FindByCode(ctx context.Context, code string) (*model.Reservation, error)
	TransitionStatus(ctx context.Context, code string, allowedFrom []model.Status, to model.Status, ev model.ReservationEvent) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
}

// Notification kinds passed to Notifier.Notify.
const (
	NotifyCreated       = "created"
	NotifyCancelled     = "cancelled"
	NotifyExpired       = "expired"
	NotifyStatusChanged = "statusChanged"
)

// Notifier delivers customer-facing notifications (mails).  Calls are
// best-effort: the engine logs and discards any error, and a lifecycle
// transition is never rolled back because a notification failed.
type Notifier interface {
	Notify(ctx context.Context, kind string, res *model.Reservation, meta map[string]string) error
}

// EventBus broadcasts real-time events to connected clients.  Publish
// must not block and has no failure mode visible to the engine.
type EventBus interface {
	Publish(event string, payload interface{})
}

// Event names published on the bus.
const (
	EventReservationCreated = "reservation.created"
	EventReservationUpdated = "reservation.updated"
	EventStockUpdated       = "stock.updated"
)

// StockUpdatePayload is the wire shape of a stock.updated event.  Every
// publisher, the lifecycle engine and the admin stock adjustment alike,
// builds the payload here so bus consumers handle a single schema.
func StockUpdatePayload(productID uint64, sku string) map[string]interface{} {
	return map[string]interface{}{
		"productId":  productID,
		"variantSku": sku,
	}
}

// NopNotifier discards all notifications.  Default when no broker is
// configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, *model.Reservation, map[string]string) error {
	return nil
}

// NopEventBus discards all events.  Default when no hub is attached.
type NopEventBus struct{}

// Publish implements EventBus.
func (NopEventBus) Publish(string, interface{}) {}
