package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelshop/reservation-api/internal/model"
)

func newTestReservation(code string) *model.Reservation {
	return &model.Reservation{
		Code:          code,
		CustomerEmail: "customer@test.local",
		Status:        model.StatusPending,
		ExpiresAt:     time.Now().Add(48 * time.Hour).UTC(),
		Totals:        model.Totals{ItemsCount: 2, SubtotalCents: 7000},
		Items: []model.ReservationItem{
			{ProductID: 1, VariantSKU: "SKU-A", Qty: 2, PriceSnapshotCents: 3500, NameSnapshot: "test item"},
		},
		Events: []model.ReservationEvent{
			{Type: model.EventCreated, At: time.Now().UTC()},
		},
	}
}

func TestCreateReportsCodeCollision(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewReservationRepo(db)
	code := newTestCode()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM reservations WHERE code = ?`, code)
	})

	first := newTestReservation(code)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("Create did not populate the generated ID")
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatal("Create did not read back DB timestamps")
	}

	// A second insert with the same code must surface the unique-index
	// violation as ErrCodeTaken so the caller can regenerate.
	if err := repo.Create(ctx, newTestReservation(code)); !errors.Is(err, ErrCodeTaken) {
		t.Fatalf("duplicate Create = %v, want ErrCodeTaken", err)
	}

	// The failed insert must leave no partial rows behind.
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reservations WHERE code = ?`, code).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("reservations with code %s = %d, want 1", code, count)
	}
}

func TestTransitionStatusClaimsExactlyOnce(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewReservationRepo(db)
	code := newTestCode()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM reservations WHERE code = ?`, code)
	})

	if err := repo.Create(ctx, newTestReservation(code)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	from := []model.Status{model.StatusPending, model.StatusConfirmed}
	ok, err := repo.TransitionStatus(ctx, code, from, model.StatusCancelled,
		model.ReservationEvent{Type: model.EventCancelled, At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if !ok {
		t.Fatal("first transition did not claim the reservation")
	}

	// A racing writer using the same source set loses: the status is no
	// longer in allowedFrom, so the guarded UPDATE matches nothing.
	ok, err = repo.TransitionStatus(ctx, code, from, model.StatusExpired,
		model.ReservationEvent{Type: model.EventExpired, At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("second TransitionStatus errored: %v", err)
	}
	if ok {
		t.Fatal("second transition claimed an already-terminal reservation")
	}

	res, err := repo.FindByCode(ctx, code)
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if res.Status != model.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", res.Status)
	}
	// CREATED plus the winning CANCELLED; the losing transition appended
	// nothing.
	if len(res.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(res.Events))
	}
	if res.Events[1].Type != model.EventCancelled {
		t.Fatalf("last event = %s, want %s", res.Events[1].Type, model.EventCancelled)
	}
}

func TestTransitionStatusUnknownCode(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	repo := NewReservationRepo(db)
	ok, err := repo.TransitionStatus(context.Background(), "NO-SUCH-CODE",
		[]model.Status{model.StatusPending}, model.StatusCancelled,
		model.ReservationEvent{Type: model.EventCancelled, At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("TransitionStatus errored: %v", err)
	}
	if ok {
		t.Fatal("transition reported success for a code that does not exist")
	}
}
