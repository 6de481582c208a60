package main

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/comanda/internal/config"
	"github.com/example/comanda/internal/database"
	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/routes"
	"github.com/example/comanda/internal/services"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("broker: %v", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	} else {
		log.Print("AMQP_URL not set, lifecycle events will be dropped")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Comanda POS Backend",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, publisher)

	reconciler := services.NewPaymentReconciler(db, cfg.PaymentPendingTTL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reconciler.Run(ctx)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}

// errorHandler maps domain failures to HTTP statuses, carrying the entity's
// current state so clients can resynchronize instead of retrying blindly.
func errorHandler(c *fiber.Ctx, err error) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		status := fiber.StatusConflict
		switch domainErr.Kind {
		case services.ErrOrderNotFound, services.ErrTableNotFound, services.ErrPaymentNotFound:
			status = fiber.StatusNotFound
		case services.ErrPaymentProviderError:
			status = fiber.StatusBadGateway
		case services.ErrProductUnavailable:
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error": fiber.Map{
				"kind":    domainErr.Kind,
				"message": domainErr.Message,
				"state":   domainErr.State,
			},
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"error":   fiber.Map{"message": fiberErr.Message},
		})
	}

	log.Printf("[HTTP] unhandled error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"message": "internal server error"},
	})
}
