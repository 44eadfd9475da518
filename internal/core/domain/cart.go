package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps a single cart line; it fits the unsigned INT column.
const MaxLineQuantity = math.MaxInt32

type Cart struct {
	ID         string     `json:"id"`
	ResidentID string     `json:"resident_id"`
	Lines      []CartLine `json:"lines"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CartLine holds a live reference to its product; the price is read at
// conversion time, not stored on the line.
type CartLine struct {
	ID        string  `json:"id"`
	CartID    string  `json:"cart_id"`
	ProductID string  `json:"product_id"`
	Product   Product `json:"product"`
	Quantity  int     `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return LineSubtotal(l.Product.Price, l.Quantity)
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func (c Cart) LineForProduct(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// IsWholeAmount reports whether d has no fractional part. Money is stored
// without decimal places.
func IsWholeAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

func LineSubtotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
