package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"saheli/internal/domain"
	"saheli/internal/modules/pricing"
	"saheli/internal/modules/refund"
	"saheli/internal/notification"
	"saheli/internal/pkg/lock"
	"saheli/internal/repository"
)

const providerCancelReason = "cancelled by provider"

// Cancel is a customer cancellation. The refund follows the service's policy
// and the time left before the scheduled start.
func (s *Service) Cancel(ctx context.Context, customerID, id int64, reason string) (*CancelResult, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, Errorf(ErrForbidden, "only the customer can cancel this booking")
	}
	if !b.CanBeCancelled() {
		return nil, transitionErr(b.Status, domain.BookingCancelled)
	}
	if date, err := domain.ParseDate(b.BookingDate); err == nil && date.Before(s.today()) {
		return nil, Errorf(ErrValidation, "cannot cancel a booking whose date has passed")
	}

	return s.cancel(ctx, b, domain.ActorCustomer, reason, func(b *domain.Booking) refund.Decision {
		svc, err := s.catalog.GetByID(ctx, b.ServiceID)
		if err != nil {
			s.log.Warn("load service for refund policy, using default tiers",
				zap.Int64("booking_id", b.ID), zap.Error(err))
			svc = nil
		}
		hours := b.ScheduledStartAt.Sub(s.now()).Hours()
		return refund.ForCustomer(svc, b, hours)
	})
}

// ProviderCancel always refunds whatever is left of the advance.
func (s *Service) ProviderCancel(ctx context.Context, providerID, id int64, reason string) (*CancelResult, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, Errorf(ErrForbidden, "only the provider can cancel this booking")
	}
	if !b.CanBeCancelled() {
		return nil, transitionErr(b.Status, domain.BookingCancelled)
	}
	if reason == "" {
		reason = providerCancelReason
	}
	return s.cancel(ctx, b, domain.ActorProvider, reason, refund.ForProvider)
}

func (s *Service) cancel(ctx context.Context, b *domain.Booking, by domain.Actor, reason string, decide func(*domain.Booking) refund.Decision) (*CancelResult, error) {
	now := s.now().UTC()
	ok, err := s.bookings.Cancel(ctx, b.ID, domain.CancellableStatuses, by, reason, now)
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	if !ok {
		cur, lerr := s.load(ctx, b.ID)
		if lerr != nil {
			return nil, lerr
		}
		return nil, transitionErr(cur.Status, domain.BookingCancelled)
	}

	s.log.Info("booking cancelled",
		zap.Int64("booking_id", b.ID),
		zap.String("by", string(by)),
		zap.String("from", string(b.Status)))

	summary := RefundSummary{Status: RefundNone, Amount: decimal.Zero}
	if b.IsPaid() && b.AdvancePaymentID != "" {
		summary = s.refundOnCancel(ctx, b.ID, reason, decide)
	}

	cur, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingCancelled, cur, now).
		WithReason(reason).WithActor(by).WithAmount(summary.Amount.StringFixed(2)))

	return &CancelResult{Booking: cur, Refund: summary}, nil
}

func refundLockKey(id int64) string { return fmt.Sprintf("refund:%d", id) }

// refundOnCancel decides and issues the cancellation refund under the
// booking's refund lock, against the amounts stored at that moment.
func (s *Service) refundOnCancel(ctx context.Context, id int64, reason string, decide func(*domain.Booking) refund.Decision) RefundSummary {
	failed := RefundSummary{
		Status: RefundFailed,
		Amount: decimal.Zero,
		Error:  "refund could not be processed and has been queued for manual review",
	}

	lease, err := s.locker.Acquire(ctx, refundLockKey(id), s.cfg.SlotLockTTL)
	if err != nil {
		s.log.Error("refund lock unavailable", zap.Int64("booking_id", id), zap.Error(err))
		if rerr := s.bookings.RecordRefundFailure(ctx, id, "refund lock unavailable: "+err.Error()); rerr != nil {
			s.log.Error("record refund failure", zap.Int64("booking_id", id), zap.Error(rerr))
		}
		return failed
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	b, err := s.load(ctx, id)
	if err != nil {
		s.log.Error("reload booking for refund", zap.Int64("booking_id", id), zap.Error(err))
		return failed
	}
	d := decide(b)
	if !d.Amount.IsPositive() {
		return RefundSummary{Status: RefundNone, Percentage: d.Percentage, Amount: d.Amount, Source: d.Source}
	}
	return s.issueRefund(ctx, b, d, reason)
}

// issueRefund calls the gateway and records the outcome. A gateway failure is
// stored on the booking for manual follow-up and never undoes the caller's
// state change.
func (s *Service) issueRefund(ctx context.Context, b *domain.Booking, d refund.Decision, reason string) RefundSummary {
	summary := RefundSummary{Percentage: d.Percentage, Amount: d.Amount, Source: d.Source}

	ref, err := s.gateway.RefundPayment(ctx, b.AdvancePaymentID, pricing.MinorUnits(d.Amount), map[string]string{
		"booking_id": strconv.FormatInt(b.ID, 10),
		"reason":     reason,
	})
	if err != nil {
		s.log.Error("gateway refund failed",
			zap.Int64("booking_id", b.ID),
			zap.String("payment_id", b.AdvancePaymentID),
			zap.String("amount", d.Amount.StringFixed(2)),
			zap.Error(err))
		if rerr := s.bookings.RecordRefundFailure(ctx, b.ID, err.Error()); rerr != nil {
			s.log.Error("record refund failure", zap.Int64("booking_id", b.ID), zap.Error(rerr))
		}
		s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeRefundFailed, b, s.now()).
			WithAmount(d.Amount.StringFixed(2)))
		summary.Status = RefundFailed
		summary.Error = "refund could not be processed and has been queued for manual review"
		return summary
	}

	updated, err := s.bookings.ApplyRefund(ctx, b.ID, repository.RefundEntry{
		Amount:     d.Amount,
		Percentage: d.Percentage,
		Reason:     reason,
		RefundID:   ref.ID,
	}, s.now().UTC())
	if err != nil {
		s.log.Error("record refund", zap.Int64("booking_id", b.ID), zap.String("refund_id", ref.ID), zap.Error(err))
		summary.Status = RefundProcessed
		summary.RefundID = ref.ID
		return summary
	}

	if updated.PaymentStatus == domain.PaymentRefunded && b.AdvanceOrderID != "" {
		if err := s.payments.MarkRefunded(ctx, b.AdvanceOrderID); err != nil {
			s.log.Warn("mark ledger refunded", zap.String("order_id", b.AdvanceOrderID), zap.Error(err))
		}
	}
	s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeRefundIssued, updated, s.now()).
		WithAmount(d.Amount.StringFixed(2)).WithReason(reason))

	s.log.Info("refund issued",
		zap.Int64("booking_id", b.ID),
		zap.String("refund_id", ref.ID),
		zap.Int("percentage", d.Percentage),
		zap.String("amount", d.Amount.StringFixed(2)))

	summary.Status = RefundProcessed
	summary.RefundID = ref.ID
	return summary
}

// ManualRefund lets the provider return part of the advance outside of a
// cancellation.
func (s *Service) ManualRefund(ctx context.Context, providerID, id int64, amount decimal.Decimal, reason string) (*CancelResult, error) {
	if !amount.IsPositive() {
		return nil, Errorf(ErrValidation, "amount must be greater than zero")
	}
	if amount.Exponent() < -2 {
		return nil, Errorf(ErrValidation, "amount must have at most two decimal places")
	}

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, Errorf(ErrForbidden, "only the provider can refund this booking")
	}

	lease, err := s.locker.Acquire(ctx, refundLockKey(id), s.cfg.SlotLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, Errorf(ErrRateLimited, "a refund for this booking is already in progress")
		}
		return nil, fmt.Errorf("acquire refund lock: %w", err)
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	// re-read under the lock so the cap reflects refunds that just finished
	if b, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	if !b.IsPaid() || b.AdvancePaymentID == "" {
		// a capture that arrived after the booking expired is only in the ledger
		paymentID, err := s.capturedAdvancePayment(ctx, b)
		if err != nil {
			return nil, err
		}
		if paymentID == "" {
			return nil, Errorf(ErrValidation, "booking has no captured advance payment to refund")
		}
		b.AdvancePaymentID = paymentID
	}
	left := b.RefundableAmount()
	if amount.GreaterThan(left) {
		return nil, Errorf(ErrValidation, "amount exceeds refundable balance of %s", left.StringFixed(2))
	}
	if reason == "" {
		reason = "manual refund"
	}

	pct := int(amount.Mul(decimal.NewFromInt(100)).Div(b.AdvancePaid).Round(0).IntPart())
	summary := s.issueRefund(ctx, b, refund.Decision{Percentage: pct, Amount: amount, Source: refund.SourceProvider}, reason)
	if summary.Status == RefundFailed {
		return nil, Errorf(ErrExternalService, "payment gateway rejected the refund, it has been recorded for follow-up")
	}

	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Booking: cur, Refund: summary}, nil
}

// capturedAdvancePayment returns the payment id of a captured advance order
// recorded in the ledger, or "" when there is none.
func (s *Service) capturedAdvancePayment(ctx context.Context, b *domain.Booking) (string, error) {
	records, err := s.payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return "", fmt.Errorf("load payment records: %w", err)
	}
	for _, r := range records {
		if r.Leg == domain.LegAdvance && r.OrderID == b.AdvanceOrderID &&
			r.Status == domain.PaymentRecordCaptured && r.PaymentID != "" {
			return r.PaymentID, nil
		}
	}
	return "", nil
}
