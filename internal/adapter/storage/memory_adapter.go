package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/apartment-hub/internal/core/domain"
	"github.com/rl1809/apartment-hub/internal/port"
)

type memState struct {
	products       map[string]domain.Product
	carts          map[string]domain.Cart
	cartByResident map[string]string
	cartLines      map[string]domain.CartLine
	orders         map[string]domain.Order
	orderLines     map[string][]domain.OrderLine
	bills          map[string]domain.Bill
}

func newMemState() *memState {
	return &memState{
		products:       make(map[string]domain.Product),
		carts:          make(map[string]domain.Cart),
		cartByResident: make(map[string]string),
		cartLines:      make(map[string]domain.CartLine),
		orders:         make(map[string]domain.Order),
		orderLines:     make(map[string][]domain.OrderLine),
		bills:          make(map[string]domain.Bill),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		products:       maps.Clone(s.products),
		carts:          maps.Clone(s.carts),
		cartByResident: maps.Clone(s.cartByResident),
		cartLines:      maps.Clone(s.cartLines),
		orders:         maps.Clone(s.orders),
		orderLines:     make(map[string][]domain.OrderLine, len(s.orderLines)),
		bills:          maps.Clone(s.bills),
	}
	for id, lines := range s.orderLines {
		c.orderLines[id] = slices.Clone(lines)
	}
	return c
}

// MemoryStore keeps everything in process. Transactions are serialised and
// work on a copy that replaces the live state only when fn succeeds.
type MemoryStore struct {
	*memoryRepo

	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{state: newMemState()}
	m.memoryRepo = &memoryRepo{store: m}
	return m
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repo port.DatabaseRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := m.state.clone()
	if err := fn(ctx, &memoryRepo{tx: draft}); err != nil {
		return err
	}
	m.state = draft
	return nil
}

type memoryRepo struct {
	store *MemoryStore
	tx    *memState
}

func (r *memoryRepo) state() (*memState, func()) {
	if r.tx != nil {
		return r.tx, func() {}
	}
	r.store.mu.Lock()
	return r.store.state, r.store.mu.Unlock
}

func (r *memoryRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	st, done := r.state()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	st, done := r.state()
	defer done()

	products := slices.Collect(maps.Values(st.products))
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, product domain.Product) error {
	st, done := r.state()
	defer done()

	st.products[product.ID] = product
	return nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, product domain.Product) error {
	st, done := r.state()
	defer done()

	if _, ok := st.products[product.ID]; !ok {
		return domain.NotFoundError("product")
	}
	st.products[product.ID] = product
	return nil
}

func (r *memoryRepo) GetCartByResident(ctx context.Context, residentID string, forUpdate bool) (*domain.Cart, error) {
	st, done := r.state()
	defer done()

	id, ok := st.cartByResident[residentID]
	if !ok {
		return nil, nil
	}
	cart := st.carts[id]
	cart.Lines = []domain.CartLine{}
	for _, l := range st.cartLines {
		if l.CartID != id {
			continue
		}
		l.Product = st.products[l.ProductID]
		cart.Lines = append(cart.Lines, l)
	}
	slices.SortFunc(cart.Lines, func(a, b domain.CartLine) int {
		return strings.Compare(a.Product.Name, b.Product.Name)
	})
	return &cart, nil
}

func (r *memoryRepo) CreateCart(ctx context.Context, cart domain.Cart) error {
	st, done := r.state()
	defer done()

	if _, ok := st.cartByResident[cart.ResidentID]; ok {
		return nil
	}
	cart.Lines = nil
	st.carts[cart.ID] = cart
	st.cartByResident[cart.ResidentID] = cart.ID
	return nil
}

func (r *memoryRepo) GetCartLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	st, done := r.state()
	defer done()

	l, ok := st.cartLines[lineID]
	if !ok {
		return nil, nil
	}
	l.Product = st.products[l.ProductID]
	return &l, nil
}

func (r *memoryRepo) InsertCartLine(ctx context.Context, line domain.CartLine) error {
	st, done := r.state()
	defer done()

	for _, l := range st.cartLines {
		if l.CartID == line.CartID && l.ProductID == line.ProductID {
			return domain.ValidationError("product already in cart")
		}
	}
	line.Product = domain.Product{}
	st.cartLines[line.ID] = line
	return nil
}

func (r *memoryRepo) UpdateCartLineQuantity(ctx context.Context, lineID string, quantity int) error {
	st, done := r.state()
	defer done()

	l, ok := st.cartLines[lineID]
	if !ok {
		return domain.NotFoundError("cart line")
	}
	l.Quantity = quantity
	st.cartLines[lineID] = l
	return nil
}

func (r *memoryRepo) DeleteCartLine(ctx context.Context, lineID string) error {
	st, done := r.state()
	defer done()

	delete(st.cartLines, lineID)
	return nil
}

func (r *memoryRepo) DeleteCartLines(ctx context.Context, cartID string) error {
	st, done := r.state()
	defer done()

	maps.DeleteFunc(st.cartLines, func(_ string, l domain.CartLine) bool {
		return l.CartID == cartID
	})
	return nil
}

func (r *memoryRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	st, done := r.state()
	defer done()

	order.Lines = nil
	st.orders[order.ID] = order
	return nil
}

func (r *memoryRepo) InsertOrderLine(ctx context.Context, line domain.OrderLine) error {
	st, done := r.state()
	defer done()

	if _, ok := st.orders[line.OrderID]; !ok {
		return domain.NotFoundError("order")
	}
	st.orderLines[line.OrderID] = append(st.orderLines[line.OrderID], line)
	return nil
}

func (r *memoryRepo) UpdateOrderTotal(ctx context.Context, order domain.Order) error {
	st, done := r.state()
	defer done()

	o, ok := st.orders[order.ID]
	if !ok {
		return domain.NotFoundError("order")
	}
	o.Total = order.Total
	o.UpdatedAt = time.Now().UTC()
	st.orders[order.ID] = o
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	st, done := r.state()
	defer done()

	o, ok := st.orders[id]
	if !ok {
		return nil, nil
	}
	o.Lines = slices.Clone(st.orderLines[id])
	if o.Lines == nil {
		o.Lines = []domain.OrderLine{}
	}
	return &o, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, residentID string) ([]domain.Order, error) {
	st, done := r.state()
	defer done()

	orders := []domain.Order{}
	for _, o := range st.orders {
		if residentID != "" && o.ResidentID != residentID {
			continue
		}
		o.Lines = slices.Clone(st.orderLines[o.ID])
		if o.Lines == nil {
			o.Lines = []domain.OrderLine{}
		}
		orders = append(orders, o)
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return orders, nil
}

func (r *memoryRepo) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	st, done := r.state()
	defer done()

	o, ok := st.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	st.orders[id] = o
	return true, nil
}

func (r *memoryRepo) CreateBill(ctx context.Context, bill domain.Bill) error {
	st, done := r.state()
	defer done()

	st.bills[bill.ID] = bill
	return nil
}

func (r *memoryRepo) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	st, done := r.state()
	defer done()

	b, ok := st.bills[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memoryRepo) ListBills(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error) {
	st, done := r.state()
	defer done()

	bills := []domain.Bill{}
	for _, b := range st.bills {
		if filter.ResidentID != "" && b.ResidentID != filter.ResidentID {
			continue
		}
		if filter.PaymentStatus != "" && b.PaymentStatus != filter.PaymentStatus {
			continue
		}
		bills = append(bills, b)
	}
	slices.SortFunc(bills, func(a, b domain.Bill) int {
		return b.DueDate.Compare(a.DueDate)
	})
	return bills, nil
}

func (r *memoryRepo) MarkBillPaid(ctx context.Context, id string) (bool, error) {
	st, done := r.state()
	defer done()

	b, ok := st.bills[id]
	if !ok || b.PaymentStatus != domain.PaymentStatusUnpaid {
		return false, nil
	}
	b.PaymentStatus = domain.PaymentStatusPaid
	b.UpdatedAt = time.Now().UTC()
	st.bills[id] = b
	return true, nil
}

// MemoryLock is the single-process stand-in for RedisLock.
type MemoryLock struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	clock func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		held:  make(map[string]memoryLease),
		clock: time.Now,
	}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLock) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.held[key]; ok && lease.token == token {
		delete(l.held, key)
	}
	return nil
}
