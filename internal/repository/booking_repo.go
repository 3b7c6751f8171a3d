package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"saheli/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// PaymentCapture carries gateway identifiers for a confirmed payment.
type PaymentCapture struct {
	OrderID   string
	PaymentID string
	Signature string
	Method    string
}

// conflicting narrows q to bookings that block [start,end) on serviceID/date.
func conflicting(q *gorm.DB, serviceID int64, date, start, end string, now time.Time) *gorm.DB {
	return q.Model(&domain.Booking{}).
		Where("service_id = ? AND booking_date = ?", serviceID, date).
		Where("start_time < ? AND end_time > ?", end, start).
		Where("(status = ? OR (status = ? AND expires_at > ?))",
			domain.BookingConfirmed, domain.BookingPending, now)
}

// HasConflict reports whether an active booking overlaps the requested range.
// excludeID skips one booking, 0 skips none.
func (r *BookingRepository) HasConflict(ctx context.Context, serviceID int64, date, start, end string, now time.Time, excludeID int64) (bool, error) {
	q := conflicting(r.db.WithContext(ctx), serviceID, date, start, end, now)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var cnt int64
	if err := q.Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// ActiveOn lists bookings that currently hold time on serviceID/date.
func (r *BookingRepository) ActiveOn(ctx context.Context, serviceID int64, date string, now time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND booking_date = ?", serviceID, date).
		Where("(status = ? OR (status = ? AND expires_at > ?))",
			domain.BookingConfirmed, domain.BookingPending, now).
		Order("start_time").
		Find(&out).Error
	return out, err
}

// ReserveSlot re-checks availability and inserts b in one transaction. The
// service row is locked first so concurrent reservations for the same service
// queue behind each other on postgres.
func (r *BookingRepository) ReserveSlot(ctx context.Context, b *domain.Booking, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc domain.Service
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&svc, b.ServiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var cnt int64
		if err := conflicting(tx, b.ServiceID, b.BookingDate, b.StartTime, b.EndTime, now).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return ErrSlotTaken
		}
		return tx.Create(b).Error
	})
	if err != nil && isContention(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *BookingRepository) GetByAdvanceOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("advance_order_id = ?", orderID).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *BookingRepository) GetByRemainingOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("remaining_order_id = ?", orderID).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

type ListFilter struct {
	Status domain.BookingStatus
	Limit  int
	Offset int
}

func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID int64, f ListFilter) ([]domain.Booking, error) {
	return r.list(ctx, "customer_id = ?", customerID, f)
}

func (r *BookingRepository) ListByProvider(ctx context.Context, providerID int64, f ListFilter) ([]domain.Booking, error) {
	return r.list(ctx, "provider_id = ?", providerID, f)
}

func (r *BookingRepository) list(ctx context.Context, cond string, id int64, f ListFilter) ([]domain.Booking, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	q := r.db.WithContext(ctx).Where(cond, id)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []domain.Booking
	err := q.Order("created_at DESC").Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

// SetAdvanceOrder attaches the gateway order to a booking still awaiting payment.
func (r *BookingRepository) SetAdvanceOrder(ctx context.Context, id int64, orderID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingPending).
		Update("advance_order_id", orderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmAdvance moves Pending -> Confirmed only if the booking is still
// pending, unexpired and bound to orderID. false means another writer got there
// first or the window closed.
func (r *BookingRepository) ConfirmAdvance(ctx context.Context, id int64, p PaymentCapture, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND advance_order_id = ? AND expires_at > ?", domain.BookingPending, p.OrderID, now)
	}, map[string]interface{}{
		"status":             domain.BookingConfirmed,
		"payment_status":     domain.PaymentAdvancePaid,
		"advance_payment_id": p.PaymentID,
		"advance_signature":  p.Signature,
		"payment_method":     p.Method,
		"paid_at":            now,
	})
}

// SetRemainingOrder attaches the second-leg order to a completed booking.
func (r *BookingRepository) SetRemainingOrder(ctx context.Context, id int64, orderID string) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND payment_status = ?", domain.BookingCompleted, domain.PaymentAdvancePaid)
	}, map[string]interface{}{
		"remaining_order_id": orderID,
	})
}

// MarkRemainingPaid moves AdvancePaid -> FullyPaid for the remaining-leg order.
func (r *BookingRepository) MarkRemainingPaid(ctx context.Context, id int64, p PaymentCapture, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("payment_status = ? AND remaining_order_id = ?", domain.PaymentAdvancePaid, p.OrderID)
	}, map[string]interface{}{
		"payment_status":       domain.PaymentFullyPaid,
		"remaining_payment_id": p.PaymentID,
		"remaining_signature":  p.Signature,
		"remaining_paid_at":    now,
	})
}

// Cancel moves a booking in one of from to Cancelled.
func (r *BookingRepository) Cancel(ctx context.Context, id int64, from []domain.BookingStatus, by domain.Actor, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status IN ?", from)
	}, map[string]interface{}{
		"status":              domain.BookingCancelled,
		"cancelled_by":        by,
		"cancellation_reason": reason,
		"cancelled_at":        now,
	})
}

// Expire cancels a Pending booking whose payment window closed at or before now.
func (r *BookingRepository) Expire(ctx context.Context, id int64, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND expires_at <= ?", domain.BookingPending, now)
	}, map[string]interface{}{
		"status":              domain.BookingCancelled,
		"cancelled_by":        domain.ActorSystem,
		"cancellation_reason": reason,
		"cancelled_at":        now,
	})
}

func (r *BookingRepository) Start(ctx context.Context, id int64, by domain.Actor, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND actual_start_time IS NULL", domain.BookingConfirmed)
	}, map[string]interface{}{
		"status":            domain.BookingInProgress,
		"actual_start_time": now,
		"started_by":        by,
	})
}

// Complete moves InProgress -> Completed and bumps the provider's counter in
// the same transaction, so the counter moves exactly once per booking.
func (r *BookingRepository) Complete(ctx context.Context, id int64, by domain.Actor, now time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Booking{}).
			Where("id = ? AND status = ? AND actual_end_time IS NULL", id, domain.BookingInProgress).
			Updates(map[string]interface{}{
				"status":          domain.BookingCompleted,
				"actual_end_time": now,
				"completed_by":    by,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		var b domain.Booking
		if err := tx.Select("provider_id").First(&b, id).Error; err != nil {
			return err
		}
		return tx.Model(&domain.User{}).Where("id = ?", b.ProviderID).Updates(map[string]interface{}{
			"completed_bookings_count": gorm.Expr("completed_bookings_count + 1"),
			"is_verified": gorm.Expr("CASE WHEN completed_bookings_count + 1 >= ? THEN ? ELSE is_verified END",
				domain.VerifiedBadgeThreshold, true),
		}).Error
	})
	return changed, err
}

func (r *BookingRepository) MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	return r.transition(ctx, id, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND reminder_sent = ?", domain.BookingConfirmed, false)
	}, map[string]interface{}{
		"reminder_sent":    true,
		"reminder_sent_at": now,
	})
}

// RefundEntry is one refund issued against the advance payment.
type RefundEntry struct {
	Amount     decimal.Decimal
	Percentage int
	Reason     string
	RefundID   string
}

// ApplyRefund adds e to the cumulative refund under a row lock. The amount is
// capped at the unrefunded part of the advance; reaching the advance marks the
// booking Refunded. The stored booking is returned.
func (r *BookingRepository) ApplyRefund(ctx context.Context, id int64, e RefundEntry, now time.Time) (*domain.Booking, error) {
	var out domain.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, id).Error; err != nil {
			return notFound(err)
		}
		amt := e.Amount
		if left := out.RefundableAmount(); amt.GreaterThan(left) {
			amt = left
		}
		if !amt.IsPositive() {
			return nil
		}
		total := out.RefundAmount.Add(amt)
		updates := map[string]interface{}{
			"refund_amount":     total,
			"refund_percentage": e.Percentage,
			"refund_reason":     e.Reason,
			"refund_id":         e.RefundID,
			"refunded_at":       now,
			"refund_error":      "",
		}
		if total.GreaterThanOrEqual(out.AdvancePaid) {
			updates["payment_status"] = domain.PaymentRefunded
		}
		if err := tx.Model(&domain.Booking{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&out, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *BookingRepository) RecordRefundFailure(ctx context.Context, id int64, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id).Update("refund_error", reason).Error
}

func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", domain.BookingPending, now).
		Order("expires_at").Limit(limit).Find(&out).Error
	return out, err
}

// ListStartCandidates returns confirmed bookings not yet started whose
// scheduled start is at or before cutoff.
func (r *BookingRepository) ListStartCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND actual_start_time IS NULL AND scheduled_start_at <= ?", domain.BookingConfirmed, cutoff).
		Order("scheduled_start_at").Limit(limit).Find(&out).Error
	return out, err
}

// ListCompleteCandidates returns in-progress bookings whose scheduled end is
// at or before cutoff.
func (r *BookingRepository) ListCompleteCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND actual_end_time IS NULL AND scheduled_end_at <= ?", domain.BookingInProgress, cutoff).
		Order("scheduled_end_at").Limit(limit).Find(&out).Error
	return out, err
}

// ListReminderCandidates returns confirmed, unreminded bookings starting in (now, now+lead].
func (r *BookingRepository) ListReminderCandidates(ctx context.Context, now time.Time, lead time.Duration, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ?", domain.BookingConfirmed, false).
		Where("scheduled_start_at > ? AND scheduled_start_at <= ?", now, now.Add(lead)).
		Order("scheduled_start_at").Limit(limit).Find(&out).Error
	return out, err
}

func (r *BookingRepository) transition(ctx context.Context, id int64, cond func(*gorm.DB) *gorm.DB, updates map[string]interface{}) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id)
	res := cond(q).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
