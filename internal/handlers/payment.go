package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/middleware"
	"github.com/example/comanda/internal/models"
	"github.com/example/comanda/internal/services"
)

// PaymentHandler exposes the payment coordinator over HTTP.
type PaymentHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{db: db, payments: payments}
}

type beginPaymentRequest struct {
	Method    string `json:"method"`
	TipAmount string `json:"tip_amount"`
}

// Begin opens a settlement attempt for an order.
func (h *PaymentHandler) Begin(c *fiber.Ctx) error {
	cashierID, ok := middleware.GetCurrentStaffID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var req beginPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tip := decimal.Zero
	if req.TipAmount != "" {
		tip, err = decimal.NewFromString(req.TipAmount)
		if err != nil || tip.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid tip_amount")
		}
	}

	switch models.PaymentMethod(req.Method) {
	case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodTransfer, models.PaymentMethodWallet:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment method")
	}

	result, err := h.payments.BeginPayment(c.Context(), services.BeginPaymentInput{
		OrderID:   orderID,
		Method:    models.PaymentMethod(req.Method),
		TipAmount: tip,
		CashierID: cashierID,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": result})
}

// Confirm records a confirmed settlement for an order.
func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	payment, err := h.payments.ConfirmPayment(c.Context(), orderID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}

type refundRequest struct {
	Amount string `json:"amount"`
}

// Refund reverses a completed payment.
func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil || !parsed.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid amount")
		}
		amount = &parsed
	}

	payment, err := h.payments.RefundPayment(c.Context(), paymentID, amount)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// GetByOrder returns the settlement attempt for an order.
func (h *PaymentHandler) GetByOrder(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var payment models.Payment
	if err := h.db.First(&payment, "order_id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "payment not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// Summary returns the aggregation of completed payments for a day.
func (h *PaymentHandler) Summary(c *fiber.Ctx) error {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		date = parsed
	}

	summary, err := h.payments.DailySummary(c.Context(), date)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": summary})
}
