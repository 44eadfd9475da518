package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusInTransit OrderStatus = "IN_TRANSIT"
	OrderStatusDelivered OrderStatus = "DELIVERED"
)

var orderLifecycle = []OrderStatus{
	OrderStatusPending,
	OrderStatusShipping,
	OrderStatusInTransit,
	OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	for _, st := range orderLifecycle {
		if st == s {
			return true
		}
	}
	return false
}

// Next returns the status that follows s. The lifecycle only moves forward.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for i, st := range orderLifecycle {
		if st == s && i+1 < len(orderLifecycle) {
			return orderLifecycle[i+1], true
		}
	}
	return "", false
}

type Order struct {
	ID         string          `json:"id"`
	ResidentID string          `json:"resident_id"`
	Total      decimal.Decimal `json:"total_amount"`
	Status     OrderStatus     `json:"status"`
	Lines      []OrderLine     `json:"lines"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderLine is a frozen copy of a cart line. ProductName and Price never
// follow later catalog changes.
type OrderLine struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func NewOrderLine(id, orderID string, line CartLine) OrderLine {
	return OrderLine{
		ID:          id,
		OrderID:     orderID,
		ProductID:   line.ProductID,
		ProductName: line.Product.Name,
		Quantity:    line.Quantity,
		Price:       line.Product.Price,
	}
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return LineSubtotal(l.Price, l.Quantity)
}

func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
