package port

import "github.com/shopspring/decimal"

// PaymentVerifier checks the signature a payment gateway attaches to a
// payment confirmation.
type PaymentVerifier interface {
	Verify(billID string, amount decimal.Decimal, signature string) error
}
