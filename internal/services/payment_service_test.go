package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/models"
)

// fakeGateway is a programmable provider stand-in.
type fakeGateway struct {
	mu          sync.Mutex
	intentErr   error
	refundErr   error
	refundDelay time.Duration
	intents     int
	refunds     int
	lastAmount  decimal.Decimal
}

func (g *fakeGateway) CreateIntent(_ context.Context, in CreateIntentInput) (*IntentResult, error) {
	g.mu.Lock()
	g.intents++
	g.lastAmount = in.Amount
	err := g.intentErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &IntentResult{IntentID: "pi_test_123", ClientSecret: "pi_test_123_secret"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) (*RefundResult, error) {
	g.mu.Lock()
	g.refunds++
	g.lastAmount = amount
	err := g.refundErr
	delay := g.refundDelay
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: "re_test_123"}, nil
}

func newTestPaymentService(t *testing.T, db *gorm.DB) (*PaymentService, *OrderService, *fakeGateway, *capturePublisher) {
	t.Helper()
	orders, pub := newTestOrderService(db, "0.10")
	gateway := &fakeGateway{}
	return NewPaymentService(db, orders, gateway, pub, "USD"), orders, gateway, pub
}

// deliveredOrder seeds a table and product and walks an order to delivered.
func deliveredOrder(t *testing.T, db *gorm.DB, orders *OrderService) *models.Order {
	t.Helper()
	ctx := context.Background()

	seedTable(t, db, 7, "")
	p := seedProduct(t, db, "Parrillada", "20.00")

	order, err := orders.CreateOrder(ctx, CreateOrderInput{
		TableNumber: 7,
		WaiterID:    uuid.New(),
		Items:       []NewItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	for _, status := range []models.OrderStatus{
		models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusDelivered,
	} {
		order, err = orders.UpdateOrderStatus(ctx, order.ID, status)
		require.NoError(t, err)
	}
	return order
}

func TestCashPaymentSettlesImmediately(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	cashier := uuid.New()
	tip := decimal.RequireFromString("2.00")

	res, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		TipAmount: tip,
		CashierID: cashier,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusCompleted, res.Payment.Status)
	assert.NotNil(t, res.Payment.PaidAt)
	assert.Empty(t, res.ClientSecret)
	assert.Zero(t, gateway.intents, "cash must not touch the provider")

	// 20.00 + 10% tax + 2.00 tip.
	assert.True(t, res.Payment.Amount.Equal(decimal.RequireFromString("24.00")), "amount = %s", res.Payment.Amount)

	var settled models.Order
	require.NoError(t, db.First(&settled, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)
	assert.NotNil(t, settled.PaidAt)
	assert.True(t, settled.Tip.Equal(tip))
	assert.True(t, settled.Total.Equal(decimal.RequireFromString("24.00")), "total = %s", settled.Total)
}

func TestCashPaymentRequiresDeliveredOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, _, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	seedTable(t, db, 1, "")
	p := seedProduct(t, db, "Parrillada", "20.00")
	order, err := orders.CreateOrder(ctx, CreateOrderInput{
		TableNumber: 1,
		WaiterID:    uuid.New(),
		Items:       []NewItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	assert.True(t, IsKind(err, ErrInvalidTransition), "got %v", err)
}

func TestCardPaymentFlow(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)

	res, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		TipAmount: decimal.Zero,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, res.Payment.Status)
	assert.Equal(t, "pi_test_123", res.Payment.ProviderRef)
	assert.Equal(t, "pi_test_123_secret", res.ClientSecret)
	assert.Equal(t, 1, gateway.intents)

	// Order is untouched until confirmation.
	var mid models.Order
	require.NoError(t, db.First(&mid, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusDelivered, mid.Status)

	payment, err := svc.ConfirmPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)

	var settled models.Order
	require.NoError(t, db.First(&settled, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)

	// Confirming again re-drives the settlement idempotently.
	again, err := svc.ConfirmPayment(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, again.Status)
}

func TestBeginPaymentReusesPendingAttempt(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	in := BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	}

	first, err := svc.BeginPayment(ctx, in)
	require.NoError(t, err)

	second, err := svc.BeginPayment(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, 1, gateway.intents, "no duplicate intent for a pending attempt")
	// A terminal that lost the secret can recover it from the reused attempt.
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.NotEmpty(t, second.ClientSecret)
}

func TestProviderFailureMarksAttemptFailedAndAllowsRetry(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	gateway.intentErr = errors.New("card declined")

	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrPaymentProviderError), "got %v", err)

	var failed models.Payment
	require.NoError(t, db.First(&failed, "order_id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)

	// A failed attempt cannot be confirmed.
	_, err = svc.ConfirmPayment(ctx, order.ID)
	assert.True(t, IsKind(err, ErrInvalidTransition), "got %v", err)

	// The retry resets the same row instead of violating the one-payment-per-order index.
	gateway.intentErr = nil
	res, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, failed.ID, res.Payment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, res.Payment.Status)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestBeginPaymentRejectsSettledOrCancelledOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, _, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	assert.True(t, IsKind(err, ErrOrderAlreadySettled), "got %v", err)

	agua := seedProduct(t, db, "Agua", "1.00")
	seedTable(t, db, 9, "")
	cancelled, err := orders.CreateOrder(ctx, CreateOrderInput{
		TableNumber: 9,
		WaiterID:    uuid.New(),
		Items:       []NewItemInput{{ProductID: agua.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = orders.CancelOrder(ctx, cancelled.ID)
	require.NoError(t, err)

	_, err = svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   cancelled.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	assert.True(t, IsKind(err, ErrInvalidTransition), "got %v", err)
}

func TestRefundReversesCardPaymentAndCancelsOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)
	payment, err := svc.ConfirmPayment(ctx, order.ID)
	require.NoError(t, err)

	refunded, err := svc.RefundPayment(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, 1, gateway.refunds)
	assert.True(t, gateway.lastAmount.Equal(payment.Amount))

	var voided models.Order
	require.NoError(t, db.First(&voided, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusCancelled, voided.Status)

	// A refunded payment cannot be refunded again.
	_, err = svc.RefundPayment(ctx, payment.ID, nil)
	assert.True(t, IsKind(err, ErrRefundNotAllowed), "got %v", err)
}

func TestRefundRejectsCashPayment(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	res, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = svc.RefundPayment(ctx, res.Payment.ID, nil)
	assert.True(t, IsKind(err, ErrRefundNotAllowed), "got %v", err)
	assert.Zero(t, gateway.refunds)
}

func TestConcurrentRefundsReachProviderOnce(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)
	payment, err := svc.ConfirmPayment(ctx, order.ID)
	require.NoError(t, err)

	// A slow provider widens the window between claiming the refund and
	// recording its outcome.
	gateway.refundDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RefundPayment(ctx, payment.ID, nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gateway.refunds, "provider must be charged exactly once")

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case IsKind(err, ErrRefundNotAllowed):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	var final models.Payment
	require.NoError(t, db.First(&final, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusRefunded, final.Status)
}

func TestRefundProviderFailureReleasesClaim(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, gateway, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)
	payment, err := svc.ConfirmPayment(ctx, order.ID)
	require.NoError(t, err)

	gateway.refundErr = errors.New("provider unavailable")
	_, err = svc.RefundPayment(ctx, payment.ID, nil)
	assert.True(t, IsKind(err, ErrPaymentProviderError), "got %v", err)

	// The claim is released and the order stays settled, so a retry works.
	var mid models.Payment
	require.NoError(t, db.First(&mid, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusCompleted, mid.Status)
	assert.Nil(t, mid.RefundedAt)

	var settled models.Order
	require.NoError(t, db.First(&settled, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, settled.Status)

	gateway.refundErr = nil
	refunded, err := svc.RefundPayment(ctx, payment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 2, gateway.refunds)
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _, _ := newTestPaymentService(t, db)

	_, err := svc.ConfirmPayment(context.Background(), uuid.New())
	assert.True(t, IsKind(err, ErrOrderNotFound), "got %v", err)
}

func TestDailySummaryExcludesRefunded(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, _, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	_, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCash,
		TipAmount: decimal.RequireFromString("1.00"),
		CashierID: uuid.New(),
	})
	require.NoError(t, err)

	// A second, card-settled order that is then refunded.
	seedTable(t, db, 8, "")
	p := seedProduct(t, db, "Choripan", "6.00")
	other, err := orders.CreateOrder(ctx, CreateOrderInput{
		TableNumber: 8,
		WaiterID:    uuid.New(),
		Items:       []NewItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	for _, status := range []models.OrderStatus{
		models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusDelivered,
	} {
		_, err = orders.UpdateOrderStatus(ctx, other.ID, status)
		require.NoError(t, err)
	}
	_, err = svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   other.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)
	cardPayment, err := svc.ConfirmPayment(ctx, other.ID)
	require.NoError(t, err)
	_, err = svc.RefundPayment(ctx, cardPayment.ID, nil)
	require.NoError(t, err)

	summary, err := svc.DailySummary(ctx, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Count)
	// 20.00 + 10% tax + 1.00 tip.
	assert.True(t, summary.Total.Equal(decimal.RequireFromString("23.00")), "total = %s", summary.Total)
	assert.True(t, summary.Tips.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, summary.ByMethod["cash"].Equal(decimal.RequireFromString("23.00")))
	_, hasCard := summary.ByMethod["card"]
	assert.False(t, hasCard)
}

func TestReconcilerSweepFailsStalePendingPayments(t *testing.T) {
	db := setupTestDB(t)
	svc, orders, _, _ := newTestPaymentService(t, db)
	ctx := context.Background()

	order := deliveredOrder(t, db, orders)
	res, err := svc.BeginPayment(ctx, BeginPaymentInput{
		OrderID:   order.ID,
		Method:    models.PaymentMethodCard,
		CashierID: uuid.New(),
	})
	require.NoError(t, err)

	reconciler := NewPaymentReconciler(db, 15*time.Minute)

	// Fresh attempt is left alone.
	n, err := reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// Backdate the attempt past the window.
	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Payment{}).Where("id = ?", res.Payment.ID).
		Update("created_at", stale).Error)

	n, err = reconciler.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var swept models.Payment
	require.NoError(t, db.First(&swept, "id = ?", res.Payment.ID).Error)
	assert.Equal(t, models.PaymentStatusFailed, swept.Status)
}
