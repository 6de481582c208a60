package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/comanda/internal/events"
	"github.com/example/comanda/internal/models"
)

// OrderService is the order lifecycle engine. Every mutation runs inside a
// single transaction with the affected order/table row locked, so concurrent
// staff requests serialize per order and per table.
type OrderService struct {
	db        *gorm.DB
	publisher events.Publisher
	taxRate   decimal.Decimal
	currency  string
}

// NewOrderService constructs the engine. The tax rate comes from
// configuration; it is never hardcoded.
func NewOrderService(db *gorm.DB, publisher events.Publisher, taxRate decimal.Decimal, currency string) *OrderService {
	return &OrderService{db: db, publisher: publisher, taxRate: taxRate, currency: currency}
}

// NewItemInput is one requested line when creating or extending an order.
type NewItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
	Notes     string
}

// CreateOrderInput carries everything needed to open an order on a table.
type CreateOrderInput struct {
	TableNumber   int
	WaiterID      uuid.UUID
	Type          models.OrderType
	Priority      int
	CustomerName  string
	CustomerPhone string
	CustomerNotes string
	KitchenNotes  string
	Items         []NewItemInput
}

// CreateOrder validates table and catalog availability, freezes current
// catalog prices into the line items, persists the order and flips the table
// to occupied — all in one transaction, so readers never observe a partial
// state. The new-order event is enqueued after commit.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, domainErr(ErrProductUnavailable, "an order needs at least one item")
	}
	if in.Type == "" {
		in.Type = models.OrderTypeDineIn
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if err := lockForUpdate(tx).Where("number = ?", in.TableNumber).First(&table).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErr(ErrTableNotFound, "table %d does not exist", in.TableNumber)
			}
			return err
		}
		if table.Status != models.TableStatusAvailable {
			return domainErrState(ErrTableUnavailable, string(table.Status),
				"table %d cannot accept a new order", table.Number)
		}

		items, err := snapshotItems(tx, mergeInputs(in.Items))
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		subtotal, tax, total := CalculateTotals(items, s.taxRate, decimal.Zero, decimal.Zero)

		order = models.Order{
			OrderNumber:       generateOrderNumber(now),
			TableID:           &table.ID,
			TableNumber:       table.Number,
			WaiterID:          in.WaiterID,
			Status:            models.OrderStatusPending,
			Type:              in.Type,
			Priority:          in.Priority,
			Subtotal:          subtotal,
			Tax:               tax,
			Discount:          decimal.Zero,
			Tip:               decimal.Zero,
			Total:             total,
			CustomerName:      in.CustomerName,
			CustomerPhone:     in.CustomerPhone,
			CustomerNotes:     in.CustomerNotes,
			KitchenNotes:      in.KitchenNotes,
			OrderedAt:         now,
			KitchenNotifiedAt: &now,
			Items:             items,
		}

		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		return tx.Model(&models.Table{}).Where("id = ?", table.ID).Updates(map[string]any{
			"status":           models.TableStatusOccupied,
			"current_order_id": order.ID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.notify(s.orderEvent(events.TypeNewOrder, &order))
	s.notify(events.Event{
		Type:        events.TypeTableStatusChanged,
		OccurredAt:  time.Now().UTC(),
		TableNumber: order.TableNumber,
		TableStatus: string(models.TableStatusOccupied),
		OrderID:     order.ID.String(),
	})

	return &order, nil
}

// UpdateOrderStatus moves an order along the transition graph, stamping the
// matching lifecycle timestamp. Entering delivered or cancelled releases the
// table in the same transaction.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus models.OrderStatus) (*models.Order, error) {
	var order models.Order
	var released *models.Table

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadOrderLocked(tx, orderID, &order); err != nil {
			return err
		}

		if !order.Status.CanTransition(newStatus) {
			return domainErrState(ErrInvalidTransition, string(order.Status),
				"order %s cannot move from %s to %s", order.OrderNumber, order.Status, newStatus)
		}

		var err error
		released, err = s.transitionLocked(tx, &order, newStatus, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(s.orderEvent(events.TypeOrderStatusChanged, &order))
	if released != nil {
		s.notify(events.Event{
			Type:        events.TypeTableStatusChanged,
			OccurredAt:  time.Now().UTC(),
			TableNumber: released.Number,
			TableStatus: string(models.TableStatusAvailable),
		})
	}

	return &order, nil
}

// CancelOrder cancels an order from any non-terminal state. Cancelling an
// already-cancelled order is a no-op; cancelling a paid order must go through
// the refund path instead.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	var released *models.Table
	var noop bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadOrderLocked(tx, orderID, &order); err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusCancelled:
			noop = true
			return nil
		case models.OrderStatusPaid:
			return domainErrState(ErrOrderAlreadySettled, string(order.Status),
				"order %s is already settled; refund it instead", order.OrderNumber)
		}

		var err error
		released, err = s.transitionLocked(tx, &order, models.OrderStatusCancelled, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		s.notify(s.orderEvent(events.TypeOrderStatusChanged, &order))
		if released != nil {
			s.notify(events.Event{
				Type:        events.TypeTableStatusChanged,
				OccurredAt:  time.Now().UTC(),
				TableNumber: released.Number,
				TableStatus: string(models.TableStatusAvailable),
			})
		}
	}

	return &order, nil
}

// AddItemsToOrder merges new lines into an active order at current catalog
// prices and recomputes the totals. A line matching an existing
// product+variant increments its quantity instead of duplicating it; the
// original frozen unit price is kept.
func (s *OrderService) AddItemsToOrder(ctx context.Context, orderID uuid.UUID, inputs []NewItemInput) (*models.Order, error) {
	if len(inputs) == 0 {
		return nil, domainErr(ErrProductUnavailable, "no items to add")
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadOrderLocked(tx, orderID, &order); err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusDelivered, models.OrderStatusPaid, models.OrderStatusCancelled:
			return domainErrState(ErrOrderLocked, string(order.Status),
				"order %s can no longer be modified", order.OrderNumber)
		}

		fresh, err := snapshotItems(tx, mergeInputs(inputs))
		if err != nil {
			return err
		}

		for _, item := range fresh {
			merged := false
			for idx := range order.Items {
				existing := &order.Items[idx]
				if existing.Status == models.ItemStatusCancelled {
					continue
				}
				if existing.ProductID != item.ProductID || !sameVariant(existing.VariantID, item.VariantID) {
					continue
				}
				existing.Quantity += item.Quantity
				if err := tx.Model(&models.OrderItem{}).Where("id = ?", existing.ID).
					Update("quantity", existing.Quantity).Error; err != nil {
					return err
				}
				merged = true
				break
			}
			if merged {
				continue
			}
			item.OrderID = order.ID
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}

		return s.persistTotals(tx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.notify(s.orderEvent(events.TypeOrderStatusChanged, &order))
	return &order, nil
}

// CalculateTotals computes the monetary breakdown over non-cancelled items.
// Pure; callers must re-persist the result on every item mutation and never
// trust a client-supplied total.
func CalculateTotals(items []models.OrderItem, taxRate, tip, discount decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		if item.Status == models.ItemStatusCancelled {
			continue
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(2)
	tax = subtotal.Mul(taxRate).Round(2)
	total = subtotal.Add(tax).Add(tip).Sub(discount).Round(2)
	return subtotal, tax, total
}

// settleOrderTx flips a delivered order to paid inside the caller's
// transaction, writing the tip onto the order so the totals invariant holds
// after settlement. Settling an already-paid order is a no-op, which lets a
// crashed payment confirmation be re-driven safely.
func (s *OrderService) settleOrderTx(tx *gorm.DB, orderID uuid.UUID, tip decimal.Decimal, now time.Time) (*models.Order, error) {
	var order models.Order
	if err := loadOrderLocked(tx, orderID, &order); err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusPaid {
		return &order, nil
	}
	if !order.Status.CanTransition(models.OrderStatusPaid) {
		return nil, domainErrState(ErrInvalidTransition, string(order.Status),
			"order %s must be delivered before settlement", order.OrderNumber)
	}

	order.Tip = tip
	order.Status = models.OrderStatusPaid
	order.PaidAt = &now
	subtotal, tax, total := CalculateTotals(order.Items, s.taxRate, order.Tip, order.Discount)
	order.Subtotal, order.Tax, order.Total = subtotal, tax, total

	err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":   models.OrderStatusPaid,
		"paid_at":  now,
		"tip":      tip,
		"subtotal": subtotal,
		"tax":      tax,
		"total":    total,
	}).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// voidSettledOrderTx cancels a paid order after its payment was refunded.
// This is the one sanctioned exit from paid; only the refund path calls it.
func (s *OrderService) voidSettledOrderTx(tx *gorm.DB, orderID uuid.UUID, now time.Time) (*models.Order, error) {
	var order models.Order
	if err := loadOrderLocked(tx, orderID, &order); err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		return &order, nil
	}

	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":       models.OrderStatusCancelled,
		"cancelled_at": now,
	}).Error; err != nil {
		return nil, err
	}

	if _, err := releaseTableTx(tx, order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

// transitionLocked applies an already-validated transition to a locked order:
// stamps the timestamp, cascades item statuses and releases the table on
// delivered/cancelled. Returns the released table, if any.
func (s *OrderService) transitionLocked(tx *gorm.DB, order *models.Order, to models.OrderStatus, now time.Time) (*models.Table, error) {
	order.Status = to
	updates := map[string]any{"status": to}

	switch to {
	case models.OrderStatusPreparing:
		order.PreparingAt = &now
		updates["preparing_at"] = now
	case models.OrderStatusReady:
		order.ReadyAt = &now
		updates["ready_at"] = now
	case models.OrderStatusDelivered:
		order.DeliveredAt = &now
		updates["delivered_at"] = now
	case models.OrderStatusPaid:
		order.PaidAt = &now
		updates["paid_at"] = now
	case models.OrderStatusCancelled:
		order.CancelledAt = &now
		updates["cancelled_at"] = now
	}

	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	if err := cascadeItemStatus(tx, order, to, now); err != nil {
		return nil, err
	}

	if to == models.OrderStatusDelivered || to == models.OrderStatusCancelled {
		return releaseTableTx(tx, order.ID)
	}
	return nil, nil
}

// cascadeItemStatus moves line items along with the order so a kitchen
// display never shows a pending item on a ready order.
func cascadeItemStatus(tx *gorm.DB, order *models.Order, to models.OrderStatus, now time.Time) error {
	var from []models.ItemStatus
	var target models.ItemStatus
	updates := map[string]any{}

	switch to {
	case models.OrderStatusPreparing:
		from = []models.ItemStatus{models.ItemStatusPending}
		target = models.ItemStatusPreparing
		updates["preparing_at"] = now
	case models.OrderStatusReady:
		from = []models.ItemStatus{models.ItemStatusPending, models.ItemStatusPreparing}
		target = models.ItemStatusReady
		updates["ready_at"] = now
	case models.OrderStatusDelivered:
		from = []models.ItemStatus{models.ItemStatusPending, models.ItemStatusPreparing, models.ItemStatusReady}
		target = models.ItemStatusDelivered
	case models.OrderStatusCancelled:
		from = []models.ItemStatus{models.ItemStatusPending, models.ItemStatusPreparing, models.ItemStatusReady}
		target = models.ItemStatusCancelled
	default:
		return nil
	}

	updates["status"] = target
	if err := tx.Model(&models.OrderItem{}).
		Where("order_id = ? AND status IN ?", order.ID, from).
		Updates(updates).Error; err != nil {
		return err
	}

	for idx := range order.Items {
		item := &order.Items[idx]
		for _, f := range from {
			if item.Status == f {
				item.Status = target
				break
			}
		}
	}
	return nil
}

// persistTotals recomputes and writes the monetary breakdown for a mutated
// order, keeping the in-memory copy in sync.
func (s *OrderService) persistTotals(tx *gorm.DB, order *models.Order) error {
	subtotal, tax, total := CalculateTotals(order.Items, s.taxRate, order.Tip, order.Discount)
	order.Subtotal, order.Tax, order.Total = subtotal, tax, total

	return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"subtotal": subtotal,
		"tax":      tax,
		"total":    total,
	}).Error
}

// loadOrderLocked fetches the order row under a write lock plus its items.
func loadOrderLocked(tx *gorm.DB, orderID uuid.UUID, order *models.Order) error {
	if err := lockForUpdate(tx).First(order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainErr(ErrOrderNotFound, "order %s does not exist", orderID)
		}
		return err
	}
	return tx.Where("order_id = ?", orderID).Order("created_at asc").Find(&order.Items).Error
}

// snapshotItems resolves catalog products/variants and freezes their current
// prices into new line items.
func snapshotItems(tx *gorm.DB, inputs []NewItemInput) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, domainErr(ErrProductUnavailable, "quantity must be positive")
		}

		var product models.Product
		if err := tx.First(&product, "id = ?", in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domainErr(ErrProductUnavailable, "product %s does not exist", in.ProductID)
			}
			return nil, err
		}
		if !product.IsAvailable {
			return nil, domainErr(ErrProductUnavailable, "product %q is not orderable right now", product.Name)
		}

		item := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			UnitPrice:   product.Price,
			Status:      models.ItemStatusPending,
			Notes:       in.Notes,
		}

		if in.VariantID != nil {
			var variant models.ProductVariant
			if err := tx.First(&variant, "id = ? AND product_id = ?", *in.VariantID, product.ID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, domainErr(ErrProductUnavailable, "variant %s does not exist for %q", *in.VariantID, product.Name)
				}
				return nil, err
			}
			if !variant.IsAvailable {
				return nil, domainErr(ErrProductUnavailable, "variant %q of %q is not orderable right now", variant.Label, product.Name)
			}
			item.VariantID = &variant.ID
			item.VariantLabel = variant.Label
			item.VariantModifier = variant.PriceModifier
		}

		items = append(items, item)
	}
	return items, nil
}

// mergeInputs folds duplicate product+variant requests into one line.
func mergeInputs(inputs []NewItemInput) []NewItemInput {
	merged := make([]NewItemInput, 0, len(inputs))
	for _, in := range inputs {
		found := false
		for idx := range merged {
			if merged[idx].ProductID == in.ProductID && sameVariant(merged[idx].VariantID, in.VariantID) {
				merged[idx].Quantity += in.Quantity
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, in)
		}
	}
	return merged
}

func sameVariant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), now.UnixNano()%1000000)
}

func (s *OrderService) orderEvent(t events.Type, order *models.Order) events.Event {
	summaries := make([]events.ItemSummary, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Status == models.ItemStatusCancelled {
			continue
		}
		summaries = append(summaries, events.ItemSummary{
			ProductName:  item.ProductName,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
			Notes:        item.Notes,
		})
	}

	return events.Event{
		Type:        t,
		OccurredAt:  time.Now().UTC(),
		OrderID:     order.ID.String(),
		OrderNumber: order.OrderNumber,
		TableNumber: order.TableNumber,
		Status:      string(order.Status),
		OrderType:   string(order.Type),
		Priority:    order.Priority,
		Amount:      order.Total.StringFixed(2),
		Items:       summaries,
	}
}

// notify publishes asynchronously after the surrounding transaction has
// committed. A delivery failure is logged, never propagated.
func (s *OrderService) notify(ev events.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[Orders] event publish failed (%s): %v", ev.Type, err)
		}
	}()
}
