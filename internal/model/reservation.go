package model

import "time"

// Status is the lifecycle state of a reservation.  Transitions between
// states are validated by CanTransitionTo; everything else in the
// codebase treats the value as opaque.
type Status string

const (
	StatusPending    Status = "PENDING"     // created with locked stock
	StatusConfirmed  Status = "CONFIRMED"   // staff confirmed the hold
	StatusInDelivery Status = "IN_DELIVERY" // handed to the courier
	StatusCompleted  Status = "COMPLETED"   // delivered; stock consumed
	StatusCancelled  Status = "CANCELLED"   // cancelled; stock returned
	StatusExpired    Status = "EXPIRED"     // TTL elapsed; stock returned
)

// transitions is the authoritative state machine.  PENDING may jump
// straight to IN_DELIVERY as an admin override; the normal path is
// PENDING -> CONFIRMED -> IN_DELIVERY -> COMPLETED.  EXPIRED is only
// ever entered by the expiration sweeper, never by an admin request.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusInDelivery, StatusCancelled, StatusExpired},
	StatusConfirmed:  {StatusInDelivery, StatusCancelled, StatusExpired},
	StatusInDelivery: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusExpired:    {},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether a reservation in this state can never move again.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// Expirable reports whether the sweeper may expire a reservation in this
// state.  Only PENDING and CONFIRMED holds are subject to the TTL.
func (s Status) Expirable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether the state machine allows moving from
// s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Reservation event types recorded in the append-only audit trail.
const (
	EventCreated       = "CREATED"
	EventCancelled     = "CANCELLED"
	EventExpired       = "EXPIRED"
	EventStatusChanged = "STATUS_CHANGED"
)

// ReservationItem is an immutable snapshot of one reserved line.  Price
// and name are captured at creation time so later catalog edits do not
// retroactively alter historical reservations.  Items are owned by their
// reservation and never referenced by any other entity.
type ReservationItem struct {
	ProductID          uint64 // reservation_items.product_id
	VariantSKU         string // reservation_items.variant_sku
	Qty                int    // reservation_items.qty (always > 0)
	PriceSnapshotCents int64  // reservation_items.price_snapshot_cents
	NameSnapshot       string // reservation_items.name_snapshot
	Size               string // reservation_items.size
	Color              string // reservation_items.color
}

// ReservationEvent is one entry in a reservation's audit trail.  Events
// are append-only; nothing ever updates or deletes them.
type ReservationEvent struct {
	Type string            // event kind (CREATED, CANCELLED, ...)
	At   time.Time         // when the event was recorded
	Meta map[string]string // extra detail, e.g. {from, to} on STATUS_CHANGED
}

// Totals holds derived figures computed once when a reservation is
// created and never recomputed afterwards.
type Totals struct {
	ItemsCount    int   // sum of item quantities
	SubtotalCents int64 // sum of qty * price snapshot
}

// Reservation is a time-boxed hold on variant stock identified by a
// short customer-facing code.  Reservations are created by the lifecycle
// service inside the same unit of work as the stock lock, mutated only
// through lifecycle transitions and never deleted: terminal states are
// retained for reporting.
//
// Fields:
//  ID              – primary key identifier.
//  Code            – unique, short, uppercase, human-typeable code.
//  CustomerEmail   – owner of the reservation; used for authorization.
//  CustomerName/Phone/Address – optional contact details.
//  Status          – current lifecycle state.
//  ExpiresAt       – absolute deadline, set once at creation.
//  Items           – non-empty list of line snapshots.
//  Totals          – derived counts, frozen at creation.
//  Events          – append-only audit trail.
type Reservation struct {
	ID              uint64
	Code            string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Status          Status
	ExpiresAt       time.Time
	Items           []ReservationItem
	Totals          Totals
	Events          []ReservationEvent
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
