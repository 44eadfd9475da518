package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/apartment-hub/internal/adapter/storage"
	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/obs"
	"github.com/rl1809/apartment-hub/internal/port"
)

var (
	alice = domain.Principal{ResidentID: "alice", Role: domain.RoleResident}
	bob   = domain.Principal{ResidentID: "bob", Role: domain.RoleResident}
	staff = domain.Principal{ResidentID: "stan", Role: domain.RoleStaff}
	admin = domain.Principal{ResidentID: "root", Role: domain.RoleAdmin}
)

// Mock EventPublisher
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Mock OrderLock that is always held by someone else
type heldLock struct{}

func (heldLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "", false, nil
}

func (heldLock) Release(ctx context.Context, key, token string) error { return nil }

// failingStore breaks DeleteCartLines inside transactions so a conversion
// fails after the order and its lines were written.
type failingStore struct {
	*storage.MemoryStore
}

func (s *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repo port.DatabaseRepository) error) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, repo port.DatabaseRepository) error {
		return fn(ctx, &failingRepo{DatabaseRepository: repo})
	})
}

type failingRepo struct {
	port.DatabaseRepository
}

func (r *failingRepo) DeleteCartLines(ctx context.Context, cartID string) error {
	return errors.New("disk full")
}

type fixture struct {
	store   port.Store
	events  *recordingPublisher
	catalog *CatalogService
	carts   *CartService
	orders  *OrderService
	bills   *BillService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, storage.NewMemoryStore(), storage.NewMemoryLock())
}

func newFixtureWith(t *testing.T, store port.Store, lock port.OrderLock) *fixture {
	t.Helper()
	log := obs.Discard()
	events := &recordingPublisher{}
	return &fixture{
		store:   store,
		events:  events,
		catalog: NewCatalogService(store, log),
		carts:   NewCartService(store, log),
		orders:  NewOrderService(store, lock, events, log, time.Second),
		bills:   NewBillService(store, nil, events, log),
	}
}

func (f *fixture) product(t *testing.T, name string, price int64) domain.Product {
	t.Helper()
	p := decimal.NewFromInt(price)
	stock := 10
	product, err := f.catalog.CreateProduct(context.Background(), staff, domain.ProductInput{
		Name:  &name,
		Price: &p,
		Stock: &stock,
	})
	require.NoError(t, err)
	return *product
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
