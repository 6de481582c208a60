package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/models"
	"github.com/example/comanda/internal/services"
)

// TableHandler manages table endpoints.
type TableHandler struct {
	db     *gorm.DB
	tables *services.TableService
}

// NewTableHandler constructs TableHandler.
func NewTableHandler(db *gorm.DB, tables *services.TableService) *TableHandler {
	return &TableHandler{db: db, tables: tables}
}

// ListTables returns all tables.
func (h *TableHandler) ListTables(c *fiber.Ctx) error {
	var tables []models.Table
	query := h.db.Order("number asc")
	if location := c.Query("location"); location != "" {
		query = query.Where("location = ?", location)
	}
	if err := query.Find(&tables).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": tables})
}

// ListAvailable returns tables able to accept a new order.
func (h *TableHandler) ListAvailable(c *fiber.Ctx) error {
	tables, err := h.tables.GetAvailableTables(c.Context(), c.Query("location"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": tables})
}

type createTableRequest struct {
	Number   int    `json:"number"`
	Capacity int    `json:"capacity"`
	Location string `json:"location"`
}

// CreateTable registers a new physical table.
func (h *TableHandler) CreateTable(c *fiber.Ctx) error {
	var req createTableRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Number <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "table number must be positive")
	}

	table := models.Table{
		Number:   req.Number,
		Capacity: req.Capacity,
		Location: req.Location,
		Status:   models.TableStatusAvailable,
	}
	if err := h.db.Create(&table).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": table})
}

type tableStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus flips a table between available, reserved and cleaning.
func (h *TableHandler) SetStatus(c *fiber.Ctx) error {
	number := c.QueryInt("number")
	if number <= 0 {
		number, _ = c.ParamsInt("number")
	}
	if number <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid table number")
	}

	var req tableStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	switch models.TableStatus(req.Status) {
	case models.TableStatusAvailable, models.TableStatusReserved, models.TableStatusCleaning, models.TableStatusOccupied:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "invalid table status")
	}

	table, err := h.tables.SetTableStatus(c.Context(), number, models.TableStatus(req.Status))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": table})
}
