package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/metrics"
	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
	"github.com/angelshop/reservation-api/internal/utils"
)

// codeAttempts bounds retries when a generated reservation code collides
// with an existing one.  With 8 hex characters collisions are rare; more
// than a couple of retries in a row means something is wrong.
const codeAttempts = 5

// CustomerMeta carries the optional contact details captured with a
// reservation.
type CustomerMeta struct {
	Name    string
	Phone   string
	Address string
}

// ReservationService is the lifecycle manager.  It validates and applies
// state transitions, coordinates stock through the inventory service and
// emits domain events to the notifier and event bus after each durable
// commit.  All mutations of a reservation in the system go through this
// type.
type ReservationService struct {
	store     ReservationStore
	inventory *InventoryService
	notifier  Notifier
	bus       EventBus
	ttl       time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewReservationService constructs the lifecycle manager.  Passing nil
// for notifier or bus installs the no-op implementations.
func NewReservationService(store ReservationStore, inventory *InventoryService, notifier Notifier, bus EventBus, ttl time.Duration, log zerolog.Logger) *ReservationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if bus == nil {
		bus = NopEventBus{}
	}
	return &ReservationService{
		store:     store,
		inventory: inventory,
		notifier:  notifier,
		bus:       bus,
		ttl:       ttl,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create locks stock for every requested line and persists a new PENDING
// reservation with an absolute expiry of now + TTL.  The operation is
// all-or-nothing: any validation or lock failure leaves no persisted
// reservation and no ledger change, and a storage failure after locking
// triggers a compensating unlock.  Item snapshots and totals are
// computed here once and never recomputed.
func (s *ReservationService) Create(ctx context.Context, customerEmail string, lines []LineRequest, meta CustomerMeta) (*model.Reservation, error) {
	items, err := s.inventory.ReserveAll(ctx, lines)
	if err != nil {
		return nil, err
	}

	totals := model.Totals{}
	for _, it := range items {
		totals.ItemsCount += it.Qty
		totals.SubtotalCents += int64(it.Qty) * it.PriceSnapshotCents
	}

	now := s.now()
	res := &model.Reservation{
		CustomerEmail:   customerEmail,
		CustomerName:    meta.Name,
		CustomerPhone:   meta.Phone,
		CustomerAddress: meta.Address,
		Status:          model.StatusPending,
		ExpiresAt:       now.Add(s.ttl),
		Items:           items,
		Totals:          totals,
		Events:          []model.ReservationEvent{{Type: model.EventCreated, At: now, Meta: map[string]string{}}},
	}

	for attempt := 0; ; attempt++ {
		res.Code = utils.NewReservationCode()
		err = s.store.Create(ctx, res)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrCodeTaken) && attempt < codeAttempts-1 {
			continue
		}
		// Persist failed after stock was locked: give the units back.
		s.inventory.ReleaseAll(ctx, items, DirectionUnlock)
		return nil, err
	}

	metrics.ReservationsCreated.Inc()
	s.log.Info().Str("code", res.Code).Str("email", customerEmail).
		Int("items", totals.ItemsCount).Int64("subtotal_cents", totals.SubtotalCents).
		Msg("reservation created")

	s.dispatch(res, NotifyCreated, nil)
	s.bus.Publish(EventReservationCreated, reservationPayload(res))
	s.publishStock(res.Items)
	return res, nil
}

// Cancel cancels a reservation and returns its stock to availability.
// When requesterEmail is non-empty it must match the reservation owner;
// admin callers pass the empty string.  The guarded status update is the
// claim that serializes a customer cancel racing the sweeper: only the
// winner releases stock and emits events, so repeating Cancel on an
// already-cancelled reservation yields ErrInvalidTransition, not a
// double release.
func (s *ReservationService) Cancel(ctx context.Context, code, requesterEmail string) (*model.Reservation, error) {
	res, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if requesterEmail != "" && res.CustomerEmail != requesterEmail {
		return nil, ErrUnauthorized
	}

	now := s.now()
	ev := model.ReservationEvent{Type: model.EventCancelled, At: now, Meta: map[string]string{}}
	cancellable := []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusInDelivery}
	applied, err := s.store.TransitionStatus(ctx, code, cancellable, model.StatusCancelled, ev)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}

	s.inventory.ReleaseAll(ctx, res.Items, DirectionUnlock)
	res.Status = model.StatusCancelled
	res.Events = append(res.Events, ev)

	metrics.ReservationsCancelled.Inc()
	s.log.Info().Str("code", code).Msg("reservation cancelled")

	s.dispatch(res, NotifyCancelled, nil)
	s.bus.Publish(EventReservationUpdated, reservationPayload(res))
	s.publishStock(res.Items)
	return res, nil
}

// Expire moves an overdue reservation to EXPIRED and returns its stock.
// The reservation is re-read fresh so the decision is never made on
// stale state, and the status guard makes the call idempotent: a second
// Expire for the same reservation is a no-op that reports false.  Stock
// is released exactly once, on the invocation that wins the guard.
func (s *ReservationService) Expire(ctx context.Context, code string) (bool, error) {
	res, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return false, nil
		}
		return false, err
	}
	if !res.Status.Expirable() {
		return false, nil
	}

	now := s.now()
	ev := model.ReservationEvent{Type: model.EventExpired, At: now, Meta: map[string]string{}}
	expirable := []model.Status{model.StatusPending, model.StatusConfirmed}
	applied, err := s.store.TransitionStatus(ctx, code, expirable, model.StatusExpired, ev)
	if err != nil {
		return false, err
	}
	if !applied {
		// Lost the race against a cancel or a concurrent sweep.
		return false, nil
	}

	s.inventory.ReleaseAll(ctx, res.Items, DirectionUnlock)
	res.Status = model.StatusExpired
	res.Events = append(res.Events, ev)

	metrics.ReservationsExpired.Inc()
	s.log.Info().Str("code", code).Time("expired_at", res.ExpiresAt).Msg("reservation expired")

	s.dispatch(res, NotifyExpired, nil)
	s.bus.Publish(EventReservationUpdated, reservationPayload(res))
	s.publishStock(res.Items)
	return true, nil
}

// SetStatus applies an admin-driven transition.  The target must be one
// of CONFIRMED, IN_DELIVERY, COMPLETED or CANCELLED and the move must be
// legal per the state machine; EXPIRED is reserved for the sweeper.
// Transitioning into CANCELLED returns stock to availability;
// transitioning into COMPLETED consumes the locked units.  A
// STATUS_CHANGED event records {from, to}.
func (s *ReservationService) SetStatus(ctx context.Context, code string, next model.Status) (*model.Reservation, error) {
	if !next.Valid() || next == model.StatusExpired || next == model.StatusPending {
		return nil, ErrInvalidTransition
	}
	res, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if res.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if !res.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	from := res.Status
	now := s.now()
	ev := model.ReservationEvent{
		Type: model.EventStatusChanged,
		At:   now,
		Meta: map[string]string{"from": string(from), "to": string(next)},
	}
	applied, err := s.store.TransitionStatus(ctx, code, []model.Status{from}, next, ev)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent transition moved the reservation first.
		return nil, ErrInvalidTransition
	}

	switch next {
	case model.StatusCancelled:
		s.inventory.ReleaseAll(ctx, res.Items, DirectionUnlock)
		metrics.ReservationsCancelled.Inc()
	case model.StatusCompleted:
		s.inventory.ReleaseAll(ctx, res.Items, DirectionRelease)
	}
	res.Status = next
	res.Events = append(res.Events, ev)

	s.log.Info().Str("code", code).
		Str("from", string(from)).Str("to", string(next)).
		Msg("reservation status changed")

	if next == model.StatusCancelled {
		s.dispatch(res, NotifyCancelled, nil)
		s.publishStock(res.Items)
	} else {
		s.dispatch(res, NotifyStatusChanged, map[string]string{"from": string(from), "to": string(next)})
	}
	s.bus.Publish(EventReservationUpdated, reservationPayload(res))
	return res, nil
}

// dispatch delivers a notification without letting the notifier affect
// the caller: it runs in its own goroutine with a bounded deadline and
// any error is logged and discarded.
func (s *ReservationService) dispatch(res *model.Reservation, kind string, meta map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, kind, res, meta); err != nil {
			s.log.Warn().Err(err).Str("code", res.Code).Str("kind", kind).
				Msg("notification failed; continuing")
		}
	}()
}

// publishStock broadcasts a stock.updated event for every affected
// variant so storefront clients can refresh availability.
func (s *ReservationService) publishStock(items []model.ReservationItem) {
	for _, it := range items {
		s.bus.Publish(EventStockUpdated, StockUpdatePayload(it.ProductID, it.VariantSKU))
	}
}

func reservationPayload(res *model.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"code":   res.Code,
		"status": string(res.Status),
	}
}
