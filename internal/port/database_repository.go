package port

import (
	"context"

	"github.com/rl1809/apartment-hub/internal/core/domain"
)

// Lookups return (nil, nil) when the row does not exist.
type DatabaseRepository interface {
	// GetProduct retrieves a product by ID
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error

	// GetCartByResident loads the resident's cart with its lines. forUpdate
	// locks the cart row until the surrounding transaction ends.
	GetCartByResident(ctx context.Context, residentID string, forUpdate bool) (*domain.Cart, error)
	CreateCart(ctx context.Context, cart domain.Cart) error
	GetCartLine(ctx context.Context, lineID string) (*domain.CartLine, error)
	InsertCartLine(ctx context.Context, line domain.CartLine) error
	UpdateCartLineQuantity(ctx context.Context, lineID string, quantity int) error
	DeleteCartLine(ctx context.Context, lineID string) error
	// DeleteCartLines empties a cart; the cart row itself is kept
	DeleteCartLines(ctx context.Context, cartID string) error

	CreateOrder(ctx context.Context, order domain.Order) error
	InsertOrderLine(ctx context.Context, line domain.OrderLine) error
	UpdateOrderTotal(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// ListOrders returns every order when residentID is empty
	ListOrders(ctx context.Context, residentID string) ([]domain.Order, error)
	// UpdateOrderStatus moves an order from one status to another, returns
	// false if the order was not in the expected status
	UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)

	CreateBill(ctx context.Context, bill domain.Bill) error
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	ListBills(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error)
	// MarkBillPaid flips UNPAID to PAID, returns false if the bill was not unpaid
	MarkBillPaid(ctx context.Context, id string) (bool, error)
}

type Store interface {
	DatabaseRepository

	// RunInTx executes fn in one transaction; fn's error rolls everything back
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo DatabaseRepository) error) error
}
