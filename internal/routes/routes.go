package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/config"
	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/handlers"
	"github.com/example/comanda/internal/middleware"
	"github.com/example/comanda/internal/models"
	"github.com/example/comanda/internal/services"
)

// Register wires up all HTTP routes. Every order/payment mutation goes
// through the one order engine and payment coordinator.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, publisher events.Publisher) {
	orderService := services.NewOrderService(db, publisher, cfg.TaxRate, cfg.Currency)
	tableService := services.NewTableService(db, publisher)
	gateway := services.NewHTTPCardGateway(cfg.CardGatewayURL, cfg.CardGatewayKey)
	paymentService := services.NewPaymentService(db, orderService, gateway, publisher, cfg.Currency)

	authHandler := handlers.NewAuthHandler(db, cfg)
	catalogHandler := handlers.NewCatalogHandler(db)
	tableHandler := handlers.NewTableHandler(db, tableService)
	orderHandler := handlers.NewOrderHandler(db, orderService)
	paymentHandler := handlers.NewPaymentHandler(db, paymentService)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Everything else requires an authenticated staff member.
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/auth/register", middleware.RequireRole(models.RoleAdmin), authHandler.Register)

	// Catalog
	categories := protected.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Post("/", middleware.RequireRole(models.RoleAdmin), catalogHandler.CreateCategory)
	categories.Put("/:id", middleware.RequireRole(models.RoleAdmin), catalogHandler.UpdateCategory)
	categories.Delete("/:id", middleware.RequireRole(models.RoleAdmin), catalogHandler.DeleteCategory)

	products := protected.Group("/products")
	products.Get("/", catalogHandler.ListProducts)
	products.Get("/:id", catalogHandler.GetProduct)
	products.Post("/", middleware.RequireRole(models.RoleAdmin), catalogHandler.CreateProduct)
	products.Put("/:id", middleware.RequireRole(models.RoleAdmin), catalogHandler.UpdateProduct)
	products.Delete("/:id", middleware.RequireRole(models.RoleAdmin), catalogHandler.DeleteProduct)
	products.Post("/:id/variants", middleware.RequireRole(models.RoleAdmin), catalogHandler.CreateVariant)

	variants := protected.Group("/variants")
	variants.Put("/:id", middleware.RequireRole(models.RoleAdmin), catalogHandler.UpdateVariant)

	// Tables
	tables := protected.Group("/tables")
	tables.Get("/", tableHandler.ListTables)
	tables.Get("/available", tableHandler.ListAvailable)
	tables.Post("/", middleware.RequireRole(models.RoleAdmin), tableHandler.CreateTable)
	tables.Patch("/:number/status", tableHandler.SetStatus)

	// Orders
	orders := protected.Group("/orders")
	orders.Post("/", middleware.RequireRole(models.RoleWaiter), orderHandler.CreateOrder)
	orders.Get("/", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Patch("/:id/status", middleware.RequireRole(models.RoleWaiter, models.RoleKitchen), orderHandler.UpdateStatus)
	orders.Post("/:id/items", middleware.RequireRole(models.RoleWaiter), orderHandler.AddItems)
	orders.Post("/:id/cancel", middleware.RequireRole(models.RoleWaiter, models.RoleCashier), orderHandler.Cancel)

	// Payments
	orders.Post("/:id/payment", middleware.RequireRole(models.RoleCashier, models.RoleWaiter), paymentHandler.Begin)
	orders.Post("/:id/payment/confirm", middleware.RequireRole(models.RoleCashier, models.RoleWaiter), paymentHandler.Confirm)
	orders.Get("/:id/payment", paymentHandler.GetByOrder)

	payments := protected.Group("/payments")
	payments.Post("/:id/refund", middleware.RequireRole(models.RoleCashier), paymentHandler.Refund)
	payments.Get("/summary", paymentHandler.Summary)
}
