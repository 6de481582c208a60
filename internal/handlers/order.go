package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/middleware"
	"github.com/example/comanda/internal/models"
	"github.com/example/comanda/internal/services"
	"github.com/example/comanda/internal/utils"
)

// OrderHandler exposes the order engine over HTTP.
type OrderHandler struct {
	db     *gorm.DB
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, orders *services.OrderService) *OrderHandler {
	return &OrderHandler{db: db, orders: orders}
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

type createOrderRequest struct {
	TableNumber   int                `json:"table_number"`
	Type          string             `json:"type"`
	Priority      int                `json:"priority"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	CustomerNotes string             `json:"customer_notes"`
	KitchenNotes  string             `json:"kitchen_notes"`
	Items         []orderItemRequest `json:"items"`
}

func parseItems(raw []orderItemRequest) ([]services.NewItemInput, error) {
	items := make([]services.NewItemInput, 0, len(raw))
	for _, r := range raw {
		productID, err := uuid.Parse(r.ProductID)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
		}
		item := services.NewItemInput{
			ProductID: productID,
			Quantity:  r.Quantity,
			Notes:     r.Notes,
		}
		if r.VariantID != "" {
			variantID, err := uuid.Parse(r.VariantID)
			if err != nil {
				return nil, fiber.NewError(fiber.StatusBadRequest, "invalid variant_id")
			}
			item.VariantID = &variantID
		}
		items = append(items, item)
	}
	return items, nil
}

// CreateOrder opens a new order on a table for the authenticated waiter.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	waiterID, ok := middleware.GetCurrentStaffID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items, err := parseItems(req.Items)
	if err != nil {
		return err
	}

	order, err := h.orders.CreateOrder(c.Context(), services.CreateOrderInput{
		TableNumber:   req.TableNumber,
		WaiterID:      waiterID,
		Type:          models.OrderType(req.Type),
		Priority:      req.Priority,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerNotes: req.CustomerNotes,
		KitchenNotes:  req.KitchenNotes,
		Items:         items,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": order})
}

// ListOrders returns paginated orders, optionally filtered by status.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if table := c.QueryInt("table_number"); table > 0 {
		query = query.Where("table_number = ?", table)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("ordered_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order with its items.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var order models.Order
	if err := h.db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves an order along its lifecycle.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.UpdateOrderStatus(c.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type addItemsRequest struct {
	Items []orderItemRequest `json:"items"`
}

// AddItems merges extra line items into an active order.
func (h *OrderHandler) AddItems(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req addItemsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	items, err := parseItems(req.Items)
	if err != nil {
		return err
	}

	order, err := h.orders.AddItemsToOrder(c.Context(), id, items)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

// Cancel cancels an order. Idempotent on already-cancelled orders.
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.CancelOrder(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}
