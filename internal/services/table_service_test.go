package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/comanda/internal/models"
)

func TestGetAvailableTablesFiltersByStatusAndLocation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTableService(db, &capturePublisher{})
	ctx := context.Background()

	seedTable(t, db, 1, "patio")
	seedTable(t, db, 2, "salon")
	reserved := seedTable(t, db, 3, "patio")
	require.NoError(t, db.Model(&models.Table{}).Where("id = ?", reserved.ID).
		Update("status", models.TableStatusReserved).Error)

	all, err := svc.GetAvailableTables(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Number)
	assert.Equal(t, 2, all[1].Number)

	patio, err := svc.GetAvailableTables(ctx, "patio")
	require.NoError(t, err)
	require.Len(t, patio, 1)
	assert.Equal(t, 1, patio[0].Number)
}

func TestSetTableStatusRules(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTableService(db, &capturePublisher{})
	ctx := context.Background()

	seedTable(t, db, 5, "")

	table, err := svc.SetTableStatus(ctx, 5, models.TableStatusReserved)
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusReserved, table.Status)

	table, err = svc.SetTableStatus(ctx, 5, models.TableStatusCleaning)
	require.NoError(t, err)
	assert.Equal(t, models.TableStatusCleaning, table.Status)

	_, err = svc.SetTableStatus(ctx, 5, models.TableStatusOccupied)
	assert.True(t, IsKind(err, ErrInvalidTransition), "got %v", err)

	_, err = svc.SetTableStatus(ctx, 99, models.TableStatusReserved)
	assert.True(t, IsKind(err, ErrTableNotFound), "got %v", err)
}

func TestSetTableStatusRejectsOccupiedTable(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTableService(db, &capturePublisher{})
	orders, _ := newTestOrderService(db, "0.10")
	ctx := context.Background()

	seedTable(t, db, 6, "")
	p := seedProduct(t, db, "Milanesa", "5.00")
	_, err := orders.CreateOrder(ctx, CreateOrderInput{
		TableNumber: 6,
		WaiterID:    uuid.New(),
		Items:       []NewItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.SetTableStatus(ctx, 6, models.TableStatusCleaning)
	assert.True(t, IsKind(err, ErrTableUnavailable), "got %v", err)
}
