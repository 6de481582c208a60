package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/models"
)

// PaymentService reconciles settlement attempts against orders. Provider I/O
// never happens while a row lock is held: the pending row is committed first,
// the gateway is called, then a second short transaction records the outcome.
type PaymentService struct {
	db        *gorm.DB
	orders    *OrderService
	gateway   CardGateway
	publisher events.Publisher
	currency  string
}

func NewPaymentService(db *gorm.DB, orders *OrderService, gateway CardGateway, publisher events.Publisher, currency string) *PaymentService {
	return &PaymentService{db: db, orders: orders, gateway: gateway, publisher: publisher, currency: currency}
}

// BeginPaymentInput starts one settlement attempt for an order.
type BeginPaymentInput struct {
	OrderID   uuid.UUID
	Method    models.PaymentMethod
	TipAmount decimal.Decimal
	CashierID uuid.UUID
}

// BeginPaymentResult carries the payment row plus, for card/wallet methods,
// the provider connection info the terminal needs to capture the charge.
type BeginPaymentResult struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
}

// BeginPayment computes the amount owed as order total plus tip and opens a
// settlement attempt. Cash settles immediately; card and wallet create a
// provider intent; transfer waits for a manual confirmation. A pending
// attempt already on file is returned as-is, and a failed one is reset so
// the order keeps exactly one payment record.
func (s *PaymentService) BeginPayment(ctx context.Context, in BeginPaymentInput) (*BeginPaymentResult, error) {
	var payment models.Payment
	var settled *models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := loadOrderLocked(tx, in.OrderID, &order); err != nil {
			return err
		}
		if order.Status == models.OrderStatusPaid {
			return domainErrState(ErrOrderAlreadySettled, string(order.Status),
				"order %s is already settled", order.OrderNumber)
		}
		if order.Status == models.OrderStatusCancelled {
			return domainErrState(ErrInvalidTransition, string(order.Status),
				"order %s is cancelled and cannot be settled", order.OrderNumber)
		}

		amount := order.Total.Add(in.TipAmount)
		now := time.Now().UTC()

		var existing models.Payment
		err := lockForUpdate(tx).Where("order_id = ?", order.ID).First(&existing).Error
		switch {
		case err == nil:
			switch existing.Status {
			case models.PaymentStatusCompleted, models.PaymentStatusRefunded:
				return domainErrState(ErrOrderAlreadySettled, string(existing.Status),
					"order %s already has a settled payment", order.OrderNumber)
			case models.PaymentStatusPending:
				payment = existing
				return nil
			case models.PaymentStatusFailed:
				// A failed attempt does not block a fresh one; reuse the row
				// so the order keeps a single settlement record.
				existing.Method = in.Method
				existing.Amount = amount
				existing.TipAmount = in.TipAmount
				existing.CashierID = in.CashierID
				existing.Status = models.PaymentStatusPending
				existing.ProviderRef = ""
				existing.ProviderSecret = ""
				existing.PaidAt = nil
				if err := tx.Model(&models.Payment{}).Where("id = ?", existing.ID).Updates(map[string]any{
					"method":          in.Method,
					"amount":          amount,
					"tip_amount":      in.TipAmount,
					"cashier_id":      in.CashierID,
					"status":          models.PaymentStatusPending,
					"provider_ref":    "",
					"provider_secret": "",
					"paid_at":         nil,
				}).Error; err != nil {
					return err
				}
				payment = existing
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			payment = models.Payment{
				OrderID:   order.ID,
				Amount:    amount,
				TipAmount: in.TipAmount,
				Method:    in.Method,
				Status:    models.PaymentStatusPending,
				CashierID: in.CashierID,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if in.Method == models.PaymentMethodCash {
			order2, err := s.orders.settleOrderTx(tx, order.ID, in.TipAmount, now)
			if err != nil {
				return err
			}
			payment.Status = models.PaymentStatusCompleted
			payment.PaidAt = &now
			if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
				"status":  models.PaymentStatusCompleted,
				"paid_at": now,
			}).Error; err != nil {
				return err
			}
			settled = order2
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		s.notifyConfirmed(&payment, settled)
		return &BeginPaymentResult{Payment: &payment}, nil
	}

	if payment.Method != models.PaymentMethodCard && payment.Method != models.PaymentMethodWallet {
		return &BeginPaymentResult{Payment: &payment}, nil
	}
	if payment.ProviderRef != "" {
		// Reused pending attempt that already has an intent; hand the stored
		// secret back so a terminal that lost it can resume the capture.
		return &BeginPaymentResult{Payment: &payment, ClientSecret: payment.ProviderSecret}, nil
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentInput{
		Amount:   payment.Amount,
		Currency: s.currency,
		Metadata: map[string]string{
			"order_id":   payment.OrderID.String(),
			"payment_id": payment.ID.String(),
		},
	})
	if err != nil {
		if dbErr := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("id = ?", payment.ID).
			Update("status", models.PaymentStatusFailed).Error; dbErr != nil {
			log.Printf("[Payments] failed to mark payment %s failed: %v", payment.ID, dbErr)
		}
		return nil, domainErr(ErrPaymentProviderError, "provider rejected the intent: %v", err)
	}

	payment.ProviderRef = intent.IntentID
	payment.ProviderSecret = intent.ClientSecret
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", payment.ID).Updates(map[string]any{
		"provider_ref":    intent.IntentID,
		"provider_secret": intent.ClientSecret,
	}).Error; err != nil {
		return nil, err
	}

	return &BeginPaymentResult{Payment: &payment, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPayment records a confirmed settlement and, in the same transaction,
// transitions the order to paid. Confirming an already-completed payment
// re-drives the order transition idempotently instead of erroring, so a
// crash between the two writes is recoverable.
func (s *PaymentService) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	var order *models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Order row first, then payment row, matching BeginPayment's lock
		// order.
		var locked models.Order
		if err := lockForUpdate(tx).First(&locked, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrOrderNotFound, "order %s does not exist", orderID)
			}
			return err
		}
		if err := lockForUpdate(tx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrPaymentNotFound, "no payment attempt for order %s", orderID)
			}
			return err
		}

		now := time.Now().UTC()
		switch payment.Status {
		case models.PaymentStatusCompleted:
			var err error
			order, err = s.orders.settleOrderTx(tx, orderID, payment.TipAmount, now)
			return err
		case models.PaymentStatusFailed, models.PaymentStatusRefunded:
			return domainErrState(ErrInvalidTransition, string(payment.Status),
				"payment for order %s cannot be confirmed; begin a new attempt", orderID)
		}

		settledOrder, err := s.orders.settleOrderTx(tx, orderID, payment.TipAmount, now)
		if err != nil {
			return err
		}

		payment.Status = models.PaymentStatusCompleted
		payment.PaidAt = &now
		if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
			"status":  models.PaymentStatusCompleted,
			"paid_at": now,
		}).Error; err != nil {
			return err
		}

		order = settledOrder
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyConfirmed(&payment, order)
	return &payment, nil
}

// RefundPayment reverses a completed card/wallet payment and cancels the
// owning order. The refund is claimed under the row locks before the provider
// is called, so concurrent refund calls for the same payment cannot both
// reach the gateway; the refunded status doubles as the in-flight marker and
// is rolled back to completed if the provider rejects the reversal. No row
// lock is ever held across provider I/O.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, amount *decimal.Decimal) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErr(ErrPaymentNotFound, "payment %s does not exist", paymentID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Order row first, then payment row; same order as BeginPayment and
		// ConfirmPayment so the paths cannot deadlock each other.
		var order models.Order
		if err := lockForUpdate(tx).First(&order, "id = ?", payment.OrderID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := lockForUpdate(tx).First(&payment, "id = ?", paymentID).Error; err != nil {
			return err
		}
		if !payment.CanRefund() {
			return domainErrState(ErrRefundNotAllowed, string(payment.Status),
				"payment %s is not eligible for a refund (%s)", payment.ID, payment.Method)
		}

		payment.Status = models.PaymentStatusRefunded
		payment.RefundedAt = &now
		return tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
			"status":      models.PaymentStatusRefunded,
			"refunded_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = *amount
	}

	if payment.ProviderRef != "" {
		if _, err := s.gateway.Refund(ctx, payment.ProviderRef, refundAmount); err != nil {
			// Release the claim so the cashier can retry once the provider
			// recovers.
			if dbErr := s.db.WithContext(ctx).Model(&models.Payment{}).
				Where("id = ?", payment.ID).Updates(map[string]any{
				"status":      models.PaymentStatusCompleted,
				"refunded_at": nil,
			}).Error; dbErr != nil {
				log.Printf("[Payments] failed to release refund claim on %s: %v", payment.ID, dbErr)
			}
			return nil, domainErr(ErrPaymentProviderError, "provider rejected the refund: %v", err)
		}
	}

	var order *models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.voidSettledOrderTx(tx, payment.OrderID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if order != nil {
		s.orders.notify(s.orders.orderEvent(events.TypeOrderStatusChanged, order))
	}
	return &payment, nil
}

// DailySummary aggregates completed payments for one calendar day (UTC).
// Refunded payments are excluded, so a refunded-then-reissued settlement is
// never double-counted.
type DailySummary struct {
	Date     string                     `json:"date"`
	Count    int                        `json:"count"`
	Total    decimal.Decimal            `json:"total"`
	Tips     decimal.Decimal            `json:"tips"`
	ByMethod map[string]decimal.Decimal `json:"by_method"`
}

func (s *PaymentService) DailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var payments []models.Payment
	if err := s.db.WithContext(ctx).
		Where("status = ? AND paid_at >= ? AND paid_at < ?", models.PaymentStatusCompleted, start, end).
		Find(&payments).Error; err != nil {
		return nil, err
	}

	summary := &DailySummary{
		Date:     start.Format("2006-01-02"),
		Count:    len(payments),
		Total:    decimal.Zero,
		Tips:     decimal.Zero,
		ByMethod: map[string]decimal.Decimal{},
	}
	for _, p := range payments {
		summary.Total = summary.Total.Add(p.Amount)
		summary.Tips = summary.Tips.Add(p.TipAmount)
		method := string(p.Method)
		summary.ByMethod[method] = summary.ByMethod[method].Add(p.Amount)
	}
	return summary, nil
}

func (s *PaymentService) notifyConfirmed(payment *models.Payment, order *models.Order) {
	ev := events.Event{
		Type:       events.TypePaymentConfirmed,
		OccurredAt: time.Now().UTC(),
		OrderID:    payment.OrderID.String(),
		Method:     string(payment.Method),
		Amount:     payment.Amount.StringFixed(2),
	}
	if order != nil {
		ev.OrderNumber = order.OrderNumber
		ev.TableNumber = order.TableNumber
		ev.Status = string(order.Status)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[Payments] event publish failed (%s): %v", ev.Type, err)
		}
	}()
}
