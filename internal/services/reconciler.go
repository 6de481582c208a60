package services

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/example/comanda/internal/models"
)

// PaymentReconciler fails pending card/wallet payments that never received
// provider confirmation, so a stale attempt cannot block an order's
// settlement indefinitely. The window comes from configuration.
type PaymentReconciler struct {
	db       *gorm.DB
	ttl      time.Duration
	interval time.Duration
}

func NewPaymentReconciler(db *gorm.DB, ttl time.Duration) *PaymentReconciler {
	return &PaymentReconciler{db: db, ttl: ttl, interval: time.Minute}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *PaymentReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				log.Printf("[Reconciler] sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[Reconciler] marked %d stale pending payment(s) failed", n)
			}
		}
	}
}

// Sweep marks pending payments older than the window as failed and returns
// how many rows it touched.
func (r *PaymentReconciler) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-r.ttl)
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).
		Update("status", models.PaymentStatusFailed)
	return result.RowsAffected, result.Error
}
