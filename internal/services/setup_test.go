package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/comanda/internal/database"
	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A second pooled connection to :memory: would see a different database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count(t events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestOrderService(db *gorm.DB, taxRate string) (*OrderService, *capturePublisher) {
	pub := &capturePublisher{}
	svc := NewOrderService(db, pub, decimal.RequireFromString(taxRate), "USD")
	return svc, pub
}

func seedTable(t *testing.T, db *gorm.DB, number int, location string) models.Table {
	t.Helper()
	table := models.Table{
		Number:   number,
		Capacity: 4,
		Location: location,
		Status:   models.TableStatusAvailable,
	}
	require.NoError(t, db.Create(&table).Error)
	return table
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string) models.Product {
	t.Helper()
	product := models.Product{
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func seedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, label, modifier string) models.ProductVariant {
	t.Helper()
	variant := models.ProductVariant{
		ProductID:     productID,
		Label:         label,
		PriceModifier: decimal.RequireFromString(modifier),
		IsAvailable:   true,
	}
	require.NoError(t, db.Create(&variant).Error)
	return variant
}

func mustTable(t *testing.T, db *gorm.DB, number int) models.Table {
	t.Helper()
	var table models.Table
	require.NoError(t, db.First(&table, "number = ?", number).Error)
	return table
}
