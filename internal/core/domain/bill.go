package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// ParsePaymentStatus accepts any letter case, the way bill filters are
// passed on query strings.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentStatusUnpaid, PaymentStatusPaid:
		return st, nil
	}
	return "", ValidationError("unknown payment status " + s)
}

type Bill struct {
	ID            string          `json:"id"`
	ResidentID    string          `json:"resident_id"`
	Amount        decimal.Decimal `json:"amount"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	BillType      string          `json:"bill_type"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type BillInput struct {
	ResidentID string          `json:"resident_id"`
	Amount     decimal.Decimal `json:"amount"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    time.Time       `json:"due_date"`
	BillType   string          `json:"bill_type"`
}

func (in BillInput) Validate() error {
	switch {
	case in.ResidentID == "":
		return ValidationError("resident_id is required")
	case in.Amount.IsNegative():
		return ValidationError("amount must not be negative")
	case !IsWholeAmount(in.Amount):
		return ValidationError("amount must be a whole amount")
	case strings.TrimSpace(in.BillType) == "":
		return ValidationError("bill_type is required")
	case in.IssueDate.IsZero() || in.DueDate.IsZero():
		return ValidationError("issue_date and due_date are required")
	case in.DueDate.Before(in.IssueDate):
		return ValidationError("due_date must not precede issue_date")
	}
	return nil
}

type BillFilter struct {
	ResidentID    string
	PaymentStatus PaymentStatus
}
