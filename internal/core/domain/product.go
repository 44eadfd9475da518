package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProductInput carries the writable product fields. Nil fields are left
// unchanged on update.
type ProductInput struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

func (in ProductInput) Validate(creating bool) error {
	if creating && (in.Name == nil || in.Price == nil) {
		return ValidationError("name and price are required")
	}
	if in.Name != nil && *in.Name == "" {
		return ValidationError("name must not be empty")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return ValidationError("price must not be negative")
	}
	if in.Price != nil && !IsWholeAmount(*in.Price) {
		return ValidationError("price must be a whole amount")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return ValidationError("stock must not be negative")
	}
	return nil
}

func (p *Product) Apply(in ProductInput) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
}
