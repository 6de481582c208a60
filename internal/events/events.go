package events

import (
	"context"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeNewOrder           Type = "order.created"
	TypeOrderStatusChanged Type = "order.status_changed"
	TypePaymentConfirmed   Type = "payment.confirmed"
	TypeTableStatusChanged Type = "table.status_changed"
)

// ItemSummary is enough line-item detail for a kitchen display to render a
// ticket without a follow-up query.
type ItemSummary struct {
	ProductName  string `json:"product_name"`
	VariantLabel string `json:"variant_label,omitempty"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes,omitempty"`
}

// Event is one lifecycle notification. Delivery is fire-and-forget: a failed
// publish never rolls back the state mutation that produced it.
type Event struct {
	Type        Type          `json:"type"`
	OccurredAt  time.Time     `json:"occurred_at"`
	OrderID     string        `json:"order_id,omitempty"`
	OrderNumber string        `json:"order_number,omitempty"`
	TableNumber int           `json:"table_number,omitempty"`
	Status      string        `json:"status,omitempty"`
	TableStatus string        `json:"table_status,omitempty"`
	OrderType   string        `json:"order_type,omitempty"`
	Priority    int           `json:"priority,omitempty"`
	Method      string        `json:"method,omitempty"`
	Amount      string        `json:"amount,omitempty"`
	Items       []ItemSummary `json:"items,omitempty"`
}

// Publisher delivers events to interested consumer groups.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
