package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/models"
)

// TableService is the source of truth for tables and their occupancy.
// Occupied/available flips are owned by the order engine and happen inside
// its transactions; staff may only toggle reserved/cleaning here.
type TableService struct {
	db        *gorm.DB
	publisher events.Publisher
}

func NewTableService(db *gorm.DB, publisher events.Publisher) *TableService {
	return &TableService{db: db, publisher: publisher}
}

// GetAvailableTables lists tables currently able to accept an order,
// optionally filtered by location.
func (s *TableService) GetAvailableTables(ctx context.Context, location string) ([]models.Table, error) {
	query := s.db.WithContext(ctx).Where("status = ?", models.TableStatusAvailable)
	if location != "" {
		query = query.Where("location = ?", location)
	}

	var tables []models.Table
	if err := query.Order("number asc").Find(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}

// SetTableStatus lets staff flip a table between available, reserved and
// cleaning. Occupancy is derived from order state and cannot be set by hand.
func (s *TableService) SetTableStatus(ctx context.Context, number int, to models.TableStatus) (*models.Table, error) {
	if to == models.TableStatusOccupied {
		return nil, domainErr(ErrInvalidTransition, "occupied is derived from order state and cannot be set directly")
	}

	var table models.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).Where("number = ?", number).First(&table).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrTableNotFound, "table %d does not exist", number)
			}
			return err
		}
		if table.Status == models.TableStatusOccupied {
			return domainErrState(ErrTableUnavailable, string(table.Status),
				"table %d has an active order", table.Number)
		}

		table.Status = to
		return tx.Model(&models.Table{}).Where("id = ?", table.ID).
			Update("status", to).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifyTable(table.Number, to)
	return &table, nil
}

func (s *TableService) notifyTable(number int, status models.TableStatus) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.publisher.Publish(ctx, events.Event{
			Type:        events.TypeTableStatusChanged,
			OccurredAt:  time.Now().UTC(),
			TableNumber: number,
			TableStatus: string(status),
		})
	}()
}

// releaseTableTx frees whatever table the given order occupies, inside the
// caller's transaction. Returns nil when the order holds no table (e.g. a
// takeout order or one whose table was already released).
func releaseTableTx(tx *gorm.DB, orderID uuid.UUID) (*models.Table, error) {
	var table models.Table
	err := lockForUpdate(tx).Where("current_order_id = ?", orderID).First(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	table.Status = models.TableStatusAvailable
	table.CurrentOrderID = nil
	if err := tx.Model(&models.Table{}).Where("id = ?", table.ID).Updates(map[string]any{
		"status":           models.TableStatusAvailable,
		"current_order_id": nil,
	}).Error; err != nil {
		return nil, err
	}
	return &table, nil
}
