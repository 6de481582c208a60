package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions is the forward transition graph. Cancellation is handled
// separately: it is legal from any non-terminal state.
var orderTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusDelivered,
	OrderStatusDelivered: OrderStatusPaid,
}

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition reports whether moving to the given status is a legal edge.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if to == OrderStatusCancelled {
		return !s.Terminal()
	}
	return orderTransitions[s] == to
}

// OrderType distinguishes how the order is fulfilled.
type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeout  OrderType = "takeout"
	OrderTypeDelivery OrderType = "delivery"
)

// Order is one customer transaction against one table.
type Order struct {
	BaseModel
	OrderNumber string       `gorm:"uniqueIndex" json:"order_number"`
	TableID     *uuid.UUID   `gorm:"type:uuid;index" json:"table_id"`
	TableNumber int          `json:"table_number"`
	WaiterID    uuid.UUID    `gorm:"type:uuid;index" json:"waiter_id"`
	Waiter      *StaffMember `json:"waiter,omitempty"`
	Status      OrderStatus  `gorm:"index" json:"status"`
	Type        OrderType    `json:"type"`
	Priority    int          `json:"priority"`

	Subtotal decimal.Decimal `gorm:"type:decimal(10,2)" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:decimal(10,2)" json:"tax"`
	Discount decimal.Decimal `gorm:"type:decimal(10,2)" json:"discount"`
	Tip      decimal.Decimal `gorm:"type:decimal(10,2)" json:"tip"`
	Total    decimal.Decimal `gorm:"type:decimal(10,2)" json:"total"`

	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerNotes string `json:"customer_notes"`
	KitchenNotes  string `json:"kitchen_notes"`
	InternalNotes string `json:"internal_notes"`

	OrderedAt         time.Time  `json:"ordered_at"`
	KitchenNotifiedAt *time.Time `json:"kitchen_notified_at"`
	PreparingAt       *time.Time `json:"preparing_at"`
	ReadyAt           *time.Time `json:"ready_at"`
	DeliveredAt       *time.Time `json:"delivered_at"`
	PaidAt            *time.Time `json:"paid_at"`
	CancelledAt       *time.Time `json:"cancelled_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// ItemStatus mirrors the order lifecycle at line-item granularity.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPreparing ItemStatus = "preparing"
	ItemStatusReady     ItemStatus = "ready"
	ItemStatusDelivered ItemStatus = "delivered"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// OrderItem is one product at one quantity within an order. Unit price and
// variant modifier are captured at order time; later catalog edits never
// change historical orders.
type OrderItem struct {
	BaseModel
	OrderID         uuid.UUID       `gorm:"type:uuid;index" json:"order_id"`
	ProductID       uuid.UUID       `gorm:"type:uuid" json:"product_id"`
	VariantID       *uuid.UUID      `gorm:"type:uuid" json:"variant_id"`
	ProductName     string          `json:"product_name"`
	VariantLabel    string          `json:"variant_label"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(10,2)" json:"unit_price"`
	VariantModifier decimal.Decimal `gorm:"type:decimal(10,2)" json:"variant_modifier"`
	Status          ItemStatus      `json:"status"`
	Notes           string          `json:"notes"`
	PreparingAt     *time.Time      `json:"preparing_at"`
	ReadyAt         *time.Time      `json:"ready_at"`
}

// LineTotal is the item's contribution to the order subtotal.
func (i OrderItem) LineTotal() decimal.Decimal {
	qty := decimal.NewFromInt(int64(i.Quantity))
	return i.UnitPrice.Add(i.VariantModifier).Mul(qty)
}
