package domain

import "time"

const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderAdvanced  = "order.advanced"
	EventBillPaid       = "bill.paid"
)

type Event struct {
	Type       string    `json:"type"`
	ResidentID string    `json:"resident_id"`
	EntityID   string    `json:"entity_id"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
