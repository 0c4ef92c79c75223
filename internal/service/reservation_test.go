package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
)

func TestCreateReservation(t *testing.T) {
	svc, inv, store := newEngine(48 * time.Hour)
	seedShirt(inv)
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 2},
		{ProductID: 1, VariantSKU: "SHIRT-L-BLUE", Qty: 1},
	}, CustomerMeta{Name: "Ana", Phone: "+30555000111"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != model.StatusPending {
		t.Errorf("status = %s, want PENDING", res.Status)
	}
	if len(res.Code) != 8 {
		t.Errorf("code = %q, want 8 characters", res.Code)
	}
	if want := fixed.Add(48 * time.Hour); !res.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", res.ExpiresAt, want)
	}
	if res.Totals.ItemsCount != 3 || res.Totals.SubtotalCents != 3*3500 {
		t.Errorf("totals = %+v, want 3 items / 10500 cents", res.Totals)
	}
	if len(res.Events) != 1 || res.Events[0].Type != model.EventCreated {
		t.Errorf("events = %+v, want single CREATED", res.Events)
	}
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockAvailable != 8 || v.StockLocked != 2 {
		t.Errorf("stock = %d/%d, want 8/2", v.StockAvailable, v.StockLocked)
	}
	if stored := store.get(res.Code); stored.CustomerEmail != "ana@example.com" {
		t.Errorf("stored email = %q", stored.CustomerEmail)
	}
}

func TestCreateFailureLeavesNoTrace(t *testing.T) {
	svc, inv, _ := newEngine(time.Hour)
	seedShirt(inv)

	_, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-L-BLUE", Qty: 5},
	}, CustomerMeta{})
	if !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if v := inv.variant(1, "SHIRT-L-BLUE"); v.StockAvailable != 2 || v.StockLocked != 0 {
		t.Errorf("ledger mutated by failed create: %d/%d", v.StockAvailable, v.StockLocked)
	}
}

func TestCreateUnlocksWhenPersistFails(t *testing.T) {
	svc, inv, store := newEngine(time.Hour)
	seedShirt(inv)
	store.createErrs = []error{errors.New("storage down")}

	_, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 4},
	}, CustomerMeta{})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockAvailable != 10 || v.StockLocked != 0 {
		t.Errorf("locked stock not compensated: %d/%d", v.StockAvailable, v.StockLocked)
	}
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	svc, inv, store := newEngine(time.Hour)
	seedShirt(inv)
	store.createErrs = []error{repository.ErrCodeTaken, repository.ErrCodeTaken}

	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 1},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create after collisions: %v", err)
	}
	if stored := store.get(res.Code); stored.Status != model.StatusPending {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestCancelRequiresOwner(t *testing.T) {
	svc, inv, _ := newEngine(time.Hour)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 2},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), res.Code, "mallory@example.com"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	// The failed attempt must not touch stock.
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockLocked != 2 {
		t.Errorf("locked = %d, want 2", v.StockLocked)
	}

	// Admin path passes the empty requester and may cancel anyone's hold.
	if _, err := svc.Cancel(context.Background(), res.Code, ""); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	svc, inv, store := newEngine(time.Hour)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 3},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), res.Code, "ana@example.com")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockAvailable != 10 || v.StockLocked != 0 {
		t.Errorf("stock = %d/%d, want 10/0", v.StockAvailable, v.StockLocked)
	}

	if _, err := svc.Cancel(context.Background(), res.Code, "ana@example.com"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second cancel err = %v, want ErrInvalidTransition", err)
	}
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockAvailable != 10 {
		t.Errorf("second cancel inflated stock to %d", v.StockAvailable)
	}
	if got := store.get(res.Code); len(got.Events) != 2 {
		t.Errorf("events = %d, want 2 (CREATED + CANCELLED)", len(got.Events))
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	svc, inv, _ := newEngine(-time.Minute) // already overdue at creation
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-L-BLUE", Qty: 2},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := svc.Expire(context.Background(), res.Code)
	if err != nil || !ok {
		t.Fatalf("first expire = (%v, %v), want (true, nil)", ok, err)
	}
	if v := inv.variant(1, "SHIRT-L-BLUE"); v.StockAvailable != 2 || v.StockLocked != 0 {
		t.Errorf("stock = %d/%d, want 2/0", v.StockAvailable, v.StockLocked)
	}

	ok, err = svc.Expire(context.Background(), res.Code)
	if err != nil || ok {
		t.Fatalf("second expire = (%v, %v), want (false, nil)", ok, err)
	}
	if v := inv.variant(1, "SHIRT-L-BLUE"); v.StockAvailable != 2 {
		t.Errorf("second expire inflated stock to %d", v.StockAvailable)
	}

	// Unknown codes are a quiet no-op so the sweeper tolerates deletes.
	if ok, err := svc.Expire(context.Background(), "DEADBEEF"); err != nil || ok {
		t.Fatalf("unknown code expire = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestExpireSkipsNonExpirableStates(t *testing.T) {
	svc, inv, _ := newEngine(-time.Minute)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 1},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), res.Code, model.StatusInDelivery); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	// IN_DELIVERY holds outlive their TTL; the courier already has the goods.
	if ok, err := svc.Expire(context.Background(), res.Code); err != nil || ok {
		t.Fatalf("expire of IN_DELIVERY = (%v, %v), want (false, nil)", ok, err)
	}
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockLocked != 1 {
		t.Errorf("locked = %d, want 1", v.StockLocked)
	}
}

func TestSetStatusFulfilmentFlow(t *testing.T) {
	svc, inv, store := newEngine(time.Hour)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 2},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, next := range []model.Status{model.StatusConfirmed, model.StatusInDelivery, model.StatusCompleted} {
		if _, err := svc.SetStatus(context.Background(), res.Code, next); err != nil {
			t.Fatalf("SetStatus(%s): %v", next, err)
		}
	}

	// Completion consumes the locked units: they never return to availability.
	if v := inv.variant(1, "SHIRT-M-WHITE"); v.StockAvailable != 8 || v.StockLocked != 0 {
		t.Errorf("stock = %d/%d, want 8/0", v.StockAvailable, v.StockLocked)
	}
	got := store.get(res.Code)
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
	// CREATED plus three STATUS_CHANGED entries.
	if len(got.Events) != 4 {
		t.Fatalf("events = %d, want 4", len(got.Events))
	}
	last := got.Events[3]
	if last.Type != model.EventStatusChanged || last.Meta["from"] != "IN_DELIVERY" || last.Meta["to"] != "COMPLETED" {
		t.Errorf("last event = %+v", last)
	}

	if _, err := svc.SetStatus(context.Background(), res.Code, model.StatusCancelled); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("transition out of COMPLETED err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestSetStatusRejectsIllegalTargets(t *testing.T) {
	svc, inv, _ := newEngine(time.Hour)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 1},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, next := range []model.Status{model.StatusExpired, model.StatusPending, model.Status("SHIPPED")} {
		if _, err := svc.SetStatus(context.Background(), res.Code, next); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("SetStatus(%s) err = %v, want ErrInvalidTransition", next, err)
		}
	}

	// PENDING cannot jump straight to COMPLETED.
	if _, err := svc.SetStatus(context.Background(), res.Code, model.StatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("PENDING->COMPLETED err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdminCancelReturnsStock(t *testing.T) {
	svc, inv, _ := newEngine(time.Hour)
	seedShirt(inv)
	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-L-BLUE", Qty: 2},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), res.Code, model.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), res.Code, model.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if v := inv.variant(1, "SHIRT-L-BLUE"); v.StockAvailable != 2 || v.StockLocked != 0 {
		t.Errorf("stock = %d/%d, want 2/0", v.StockAvailable, v.StockLocked)
	}
}

func TestNotifierFailureDoesNotAffectLifecycle(t *testing.T) {
	inv := newMemInventory()
	seedShirt(inv)
	store := newMemStore()
	notifier := newRecordNotifier()
	notifier.err = errors.New("smtp down")
	bus := &recordBus{}
	svc := NewReservationService(store, NewInventoryService(inv, inv, testLogger()), notifier, bus, time.Hour, testLogger())

	res, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 1},
	}, CustomerMeta{})
	if err != nil {
		t.Fatalf("Create despite notifier failure: %v", err)
	}
	if kind := notifier.wait(t); kind != NotifyCreated {
		t.Errorf("notification kind = %q, want %q", kind, NotifyCreated)
	}
	if got := store.get(res.Code); got.Status != model.StatusPending {
		t.Errorf("stored status = %s", got.Status)
	}

	events := bus.names()
	if len(events) == 0 || events[0] != EventReservationCreated {
		t.Errorf("bus events = %v, want reservation.created first", events)
	}
}

func TestStockUpdatePayloadShape(t *testing.T) {
	inv := newMemInventory()
	seedShirt(inv)
	store := newMemStore()
	bus := &recordBus{}
	svc := NewReservationService(store, NewInventoryService(inv, inv, testLogger()), nil, bus, time.Hour, testLogger())

	if _, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
		{ProductID: 1, VariantSKU: "SHIRT-M-WHITE", Qty: 1},
	}, CustomerMeta{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	payloads := bus.payloadsFor(EventStockUpdated)
	if len(payloads) != 1 {
		t.Fatalf("stock.updated payloads = %d, want 1", len(payloads))
	}
	// Every stock.updated publisher shares this shape; consumers key off
	// productId and variantSku only.
	p, ok := payloads[0].(map[string]interface{})
	if !ok {
		t.Fatalf("payload type = %T, want map[string]interface{}", payloads[0])
	}
	if len(p) != 2 {
		t.Errorf("payload keys = %d, want exactly productId and variantSku", len(p))
	}
	if got, _ := p["productId"].(uint64); got != 1 {
		t.Errorf("productId = %v, want 1", p["productId"])
	}
	if got, _ := p["variantSku"].(string); got != "SHIRT-M-WHITE" {
		t.Errorf("variantSku = %v, want SHIRT-M-WHITE", p["variantSku"])
	}
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	svc, inv, _ := newEngine(time.Hour)
	inv.addVariant(
		model.Product{ID: 7, Name: "Limited Tote", Slug: "limited-tote", PriceCents: 9900, IsActive: true},
		model.Variant{SKU: "TOTE-ONE", StockAvailable: 5},
	)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "ana@example.com", []LineRequest{
				{ProductID: 7, VariantSKU: "TOTE-ONE", Qty: 1},
			}, CustomerMeta{})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, repository.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 5 {
		t.Errorf("created = %d, want exactly 5", created)
	}
	if v := inv.variant(7, "TOTE-ONE"); v.StockAvailable != 0 || v.StockLocked != 5 {
		t.Errorf("stock = %d/%d, want 0/5", v.StockAvailable, v.StockLocked)
	}
}
