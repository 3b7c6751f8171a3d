package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"saheli/internal/domain"
)

// PaymentRepository keeps one ledger row per gateway order.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error) {
	var out []domain.PaymentRecord
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("id").Find(&out).Error
	return out, err
}

// MarkCapturedIdempotent records the capture once; false means it was already
// captured.
func (r *PaymentRepository) MarkCapturedIdempotent(ctx context.Context, orderID, paymentID, method string, capturedAt time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.PaymentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("order_id = ?", orderID).First(&p).Error; err != nil {
			return notFound(err)
		}
		if p.Status == domain.PaymentRecordCaptured || p.Status == domain.PaymentRecordRefunded {
			changed = false
			return nil
		}
		res := tx.Model(&domain.PaymentRecord{}).Where("order_id = ?", orderID).Updates(map[string]interface{}{
			"status":         domain.PaymentRecordCaptured,
			"payment_id":     paymentID,
			"method":         method,
			"captured_at":    capturedAt,
			"failure_reason": "",
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("payment row not updated")
		}
		changed = true
		return nil
	})
	return changed, err
}

// MarkFailed never downgrades a captured payment.
func (r *PaymentRepository) MarkFailed(ctx context.Context, orderID, paymentID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&domain.PaymentRecord{}).
		Where("order_id = ? AND status = ?", orderID, domain.PaymentRecordCreated).
		Updates(map[string]interface{}{
			"status":         domain.PaymentRecordFailed,
			"payment_id":     paymentID,
			"failure_reason": reason,
		}).Error
}

func (r *PaymentRepository) MarkRefunded(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.PaymentRecord{}).
		Where("order_id = ? AND status = ?", orderID, domain.PaymentRecordCaptured).
		Update("status", domain.PaymentRecordRefunded).Error
}
