package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod is how money is collected.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodWallet   PaymentMethod = "digital_wallet"
)

// Payment is one settlement attempt against exactly one order. A completed
// payment represents the order's settlement; failed attempts do not block a
// fresh one.
type Payment struct {
	BaseModel
	OrderID        uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	TipAmount      decimal.Decimal `gorm:"type:decimal(10,2)" json:"tip_amount"`
	Method         PaymentMethod   `json:"method"`
	Status         PaymentStatus   `json:"status"`
	ProviderRef    string          `gorm:"index" json:"provider_ref"`
	ProviderSecret string          `json:"-"`
	CashierID      uuid.UUID       `gorm:"type:uuid" json:"cashier_id"`
	PaidAt         *time.Time      `json:"paid_at"`
	RefundedAt     *time.Time      `json:"refunded_at"`
}

// CanRefund reports whether this payment is eligible for reversal. Cash has
// no reversal path here: a cash refund is a manual register operation.
func (p Payment) CanRefund() bool {
	if p.Status != PaymentStatusCompleted {
		return false
	}
	return p.Method == PaymentMethodCard || p.Method == PaymentMethodWallet
}
