package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/apartment-hub/internal/adapter/storage"
	"github.com/rl1809/apartment-hub/internal/core/domain"
)

func TestCreateFromCart_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100000)
	b := f.product(t, "B", 50000)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddLine(ctx, alice, b.ID, 1)
	require.NoError(t, err)

	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "alice", order.ResidentID)
	assert.True(t, order.Total.Equal(dec(250000)), "total %s", order.Total)
	assert.True(t, order.Total.Equal(order.LinesTotal()))
	require.Len(t, order.Lines, 2)

	// cart row survives, lines are gone
	cart, err := f.carts.Summarize(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	stored, err := f.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(dec(250000)))
	assert.Len(t, stored.Lines, 2)

	assert.Equal(t, []string{domain.EventOrderCreated}, f.events.types())
}

func TestCreateFromCart_FreezesPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100000)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 2)
	require.NoError(t, err)
	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)

	newPrice := dec(999999)
	_, err = f.catalog.UpdateProduct(ctx, staff, a.ID, domain.ProductInput{Price: &newPrice})
	require.NoError(t, err)

	stored, err := f.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.True(t, stored.Lines[0].Price.Equal(dec(100000)), "line price %s", stored.Lines[0].Price)
	assert.True(t, stored.Total.Equal(dec(200000)))
	assert.Equal(t, "A", stored.Lines[0].ProductName)
}

func TestCreateFromCart_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	cart, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.carts.RemoveLine(ctx, alice, cart.Lines[0].ID))

	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)
	assert.True(t, order.Total.IsZero())
	assert.Empty(t, order.Lines)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestCreateFromCart_NoCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateFromCart(context.Background(), alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.events.types())
}

func TestCreateFromCart_AllOrNothing(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	f := newFixtureWith(t, store, storage.NewMemoryLock())
	ctx := context.Background()
	a := f.product(t, "A", 100)

	// AddLine goes through the failing tx too, but never clears the cart
	_, err := f.carts.AddLine(ctx, alice, a.ID, 2)
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, alice)
	require.Error(t, err)

	orders, err := f.orders.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, orders, "no order may survive a failed conversion")

	cart, err := f.carts.Summarize(ctx, alice)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Empty(t, f.events.types())
}

func TestCreateFromCart_LockHeld(t *testing.T) {
	f := newFixtureWith(t, storage.NewMemoryStore(), heldLock{})
	ctx := context.Background()
	a := f.product(t, "A", 100)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, alice)
	assert.ErrorIs(t, err, ErrOrderInProgress)
	assert.ErrorIs(t, err, domain.ErrConflict)

	cart, err := f.carts.Summarize(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestCreateFromCart_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 3)
	require.NoError(t, err)

	var withLines, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := f.orders.CreateFromCart(ctx, alice)
			switch {
			case errors.Is(err, ErrOrderInProgress):
				conflicts.Add(1)
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			case len(order.Lines) > 0:
				withLines.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), withLines.Load(), "cart contents must be converted exactly once")

	orders, err := f.orders.List(ctx, alice)
	require.NoError(t, err)
	var total int
	for _, o := range orders {
		for _, l := range o.Lines {
			total += l.Quantity
		}
	}
	assert.Equal(t, 3, total)
}

func TestCreateFromCart_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)
	f.events.err = errors.New("broker down")

	_, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)

	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
}

func TestConfirm_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)
	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)

	confirmed, err := f.orders.Confirm(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipping, confirmed.Status)
	assert.True(t, confirmed.Total.Equal(order.Total))

	_, err = f.orders.Confirm(ctx, alice, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipping, stored.Status)
	assert.Equal(t, []string{domain.EventOrderCreated, domain.EventOrderConfirmed}, f.events.types())
}

func TestConfirm_NotOwnerLooksLikeMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)
	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)

	_, errOther := f.orders.Confirm(ctx, bob, order.ID)
	_, errMissing := f.orders.Confirm(ctx, bob, "no-such-order")
	assert.ErrorIs(t, errOther, domain.ErrNotFound)
	assert.ErrorIs(t, errMissing, domain.ErrNotFound)
	assert.Equal(t, errMissing.Error(), errOther.Error())

	_, err = f.orders.Get(ctx, bob, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := f.orders.Get(ctx, alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestAdvance_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	_, err := f.carts.AddLine(ctx, alice, a.ID, 1)
	require.NoError(t, err)
	order, err := f.orders.CreateFromCart(ctx, alice)
	require.NoError(t, err)

	_, err = f.orders.Advance(ctx, alice, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.orders.Advance(ctx, staff, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "pending orders are confirmed by their owner")

	_, err = f.orders.Confirm(ctx, alice, order.ID)
	require.NoError(t, err)

	advanced, err := f.orders.Advance(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInTransit, advanced.Status)

	advanced, err = f.orders.Advance(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, advanced.Status)

	_, err = f.orders.Advance(ctx, staff, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_StaffSeesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", 100)

	for _, p := range []domain.Principal{alice, bob} {
		_, err := f.carts.AddLine(ctx, p, a.ID, 1)
		require.NoError(t, err)
		_, err = f.orders.CreateFromCart(ctx, p)
		require.NoError(t, err)
	}

	own, err := f.orders.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := f.orders.List(ctx, staff)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
