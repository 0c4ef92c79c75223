package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
)

// memInventory is an in-memory Catalog + VariantLedger with the same
// semantics as the SQL-backed implementations: Lock fails whole when
// stock is short, Unlock and Release clamp at the locked count.
type memInventory struct {
	mu       sync.Mutex
	products map[uint64]*model.Product
	variants map[string]*model.Variant
	failLock map[string]error // sku -> forced Lock error, simulates a lost race
}

func newMemInventory() *memInventory {
	return &memInventory{
		products: make(map[uint64]*model.Product),
		variants: make(map[string]*model.Variant),
		failLock: make(map[string]error),
	}
}

func vkey(productID uint64, sku string) string {
	return fmt.Sprintf("%d/%s", productID, sku)
}

func (m *memInventory) addVariant(p model.Product, v model.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ProductID = p.ID
	pc := p
	m.products[p.ID] = &pc
	vc := v
	m.variants[vkey(p.ID, v.SKU)] = &vc
}

func (m *memInventory) variant(productID uint64, sku string) model.Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.variants[vkey(productID, sku)]
}

func (m *memInventory) FindVariant(_ context.Context, productID uint64, sku string) (*model.Product, *model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, nil, repository.ErrProductNotFound
	}
	v, ok := m.variants[vkey(productID, sku)]
	if !ok {
		return nil, nil, repository.ErrVariantNotFound
	}
	pc, vc := *p, *v
	return &pc, &vc, nil
}

func (m *memInventory) Lock(_ context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failLock[sku]; ok {
		return nil, err
	}
	v, ok := m.variants[vkey(productID, sku)]
	if !ok {
		return nil, repository.ErrVariantNotFound
	}
	if v.StockAvailable < qty {
		return nil, repository.ErrInsufficientStock
	}
	v.StockAvailable -= qty
	v.StockLocked += qty
	vc := *v
	return &vc, nil
}

func (m *memInventory) Unlock(_ context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[vkey(productID, sku)]
	if !ok {
		return nil, repository.ErrVariantNotFound
	}
	moved := qty
	if moved > v.StockLocked {
		moved = v.StockLocked
	}
	v.StockLocked -= moved
	v.StockAvailable += moved
	vc := *v
	return &vc, nil
}

func (m *memInventory) Release(_ context.Context, productID uint64, sku string, qty int) (*model.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[vkey(productID, sku)]
	if !ok {
		return nil, repository.ErrVariantNotFound
	}
	moved := qty
	if moved > v.StockLocked {
		moved = v.StockLocked
	}
	v.StockLocked -= moved
	vc := *v
	return &vc, nil
}

// memStore is an in-memory ReservationStore with the same guarded
// transition semantics as the SQL repository.
type memStore struct {
	mu         sync.Mutex
	byCode     map[string]*model.Reservation
	nextID     uint64
	createErrs []error // consumed one per Create call before storing
	findErr    map[string]error
}

func newMemStore() *memStore {
	return &memStore{byCode: make(map[string]*model.Reservation), findErr: make(map[string]error)}
}

func (m *memStore) Create(_ context.Context, res *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, exists := m.byCode[res.Code]; exists {
		return repository.ErrCodeTaken
	}
	m.nextID++
	res.ID = m.nextID
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	m.byCode[res.Code] = &cp
	return nil
}

func (m *memStore) FindByCode(_ context.Context, code string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.findErr[code]; ok {
		return nil, err
	}
	res, ok := m.byCode[code]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *memStore) TransitionStatus(_ context.Context, code string, allowedFrom []model.Status, to model.Status, ev model.ReservationEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.byCode[code]
	if !ok {
		return false, repository.ErrReservationNotFound
	}
	for _, from := range allowedFrom {
		if res.Status == from {
			res.Status = to
			res.Events = append(res.Events, ev)
			res.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reservation, 0, limit)
	for _, res := range m.byCode {
		if len(out) == limit {
			break
		}
		if res.Status.Expirable() && !res.ExpiresAt.After(now) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (m *memStore) get(code string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byCode[code]
}

// recordNotifier records notification kinds on a channel so tests can
// wait for the async dispatch goroutine.
type recordNotifier struct {
	kinds chan string
	err   error
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{kinds: make(chan string, 16)}
}

func (n *recordNotifier) Notify(_ context.Context, kind string, _ *model.Reservation, _ map[string]string) error {
	n.kinds <- kind
	return n.err
}

func (n *recordNotifier) wait(t interface {
	Helper()
	Fatalf(string, ...interface{})
}) string {
	t.Helper()
	select {
	case k := <-n.kinds:
		return k
	case <-time.After(2 * time.Second):
		t.Fatalf("no notification dispatched")
		return ""
	}
}

// recordBus records published event names and payloads.
type recordBus struct {
	mu       sync.Mutex
	events   []string
	payloads []interface{}
}

func (b *recordBus) Publish(event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.payloads = append(b.payloads, payload)
}

func (b *recordBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// payloadsFor returns the payloads published under the given event name.
func (b *recordBus) payloadsFor(event string) []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []interface{}
	for i, e := range b.events {
		if e == event {
			out = append(out, b.payloads[i])
		}
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// newEngine wires a full in-memory engine for lifecycle tests.
func newEngine(ttl time.Duration) (*ReservationService, *memInventory, *memStore) {
	inv := newMemInventory()
	store := newMemStore()
	svc := NewReservationService(store, NewInventoryService(inv, inv, testLogger()), nil, nil, ttl, testLogger())
	return svc, inv, store
}
