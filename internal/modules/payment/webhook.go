package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/modules/booking"
	"saheli/internal/modules/pricing"
	"saheli/internal/notification"
	"saheli/internal/repository"
)

// HandleWebhook applies a signed gateway event. Anything that is not a storage
// failure returns nil so the gateway stops retrying.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.log.Warn("webhook signature mismatch")
		return booking.Errorf(booking.ErrPaymentVerification, "invalid webhook signature")
	}
	ev, err := razorpay.ParseWebhook(body)
	if err != nil {
		return booking.Wrap(booking.ErrValidation, err, "malformed webhook payload")
	}

	log := s.log.With(zap.String("event", ev.Event))
	switch ev.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		return s.applyCapture(ctx, ev, log)
	case razorpay.EventPaymentFailed:
		return s.applyFailure(ctx, ev, log)
	default:
		log.Debug("webhook event ignored")
		return nil
	}
}

func orderIDOf(ev *razorpay.WebhookEvent) string {
	if id := ev.Payload.Payment.Entity.OrderID; id != "" {
		return id
	}
	return ev.Payload.Order.Entity.ID
}

// resolve finds the booking and leg an order belongs to.
func (s *Service) resolve(ctx context.Context, orderID string) (*domain.Booking, domain.PaymentLeg, error) {
	b, err := s.bookings.GetByAdvanceOrderID(ctx, orderID)
	if err == nil {
		return b, domain.LegAdvance, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}
	b, err = s.bookings.GetByRemainingOrderID(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	return b, domain.LegRemaining, nil
}

func (s *Service) applyCapture(ctx context.Context, ev *razorpay.WebhookEvent, log *zap.Logger) error {
	pay := ev.Payload.Payment.Entity
	orderID := orderIDOf(ev)
	if orderID == "" {
		log.Warn("captured event without order id")
		return nil
	}
	log = log.With(zap.String("order_id", orderID), zap.String("payment_id", pay.ID))
	if pay.ID == "" {
		// order.paid without the payment entity; payment.captured carries it
		log.Info("capture event without payment id ignored")
		return nil
	}

	b, leg, err := s.resolve(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("webhook for unknown order")
			return nil
		}
		return fmt.Errorf("resolve order %s: %w", orderID, err)
	}

	expected := b.AdvancePaid
	if leg == domain.LegRemaining {
		expected = b.RemainingAmount
	}
	paid := capturedAmount(ev)
	if paid != pricing.MinorUnits(expected) {
		reason := fmt.Sprintf("amount mismatch: got %d want %d", paid, pricing.MinorUnits(expected))
		log.Error("captured amount does not match booking", zap.Int64("booking_id", b.ID), zap.String("reason", reason))
		if err := s.payments.MarkFailed(ctx, orderID, pay.ID, reason); err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		return nil
	}

	now := s.now().UTC()
	capture := repository.PaymentCapture{OrderID: orderID, PaymentID: pay.ID, Method: pay.Method}

	var ok bool
	switch leg {
	case domain.LegAdvance:
		ok, err = s.bookings.ConfirmAdvance(ctx, b.ID, capture, now)
	default:
		ok, err = s.bookings.MarkRemainingPaid(ctx, b.ID, capture, now)
	}
	if err != nil {
		return fmt.Errorf("apply %s capture: %w", leg, err)
	}

	cur, err := s.bookings.GetByID(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("reload booking: %w", err)
	}

	if !ok {
		if legSettled(cur, leg) {
			log.Info("capture already applied", zap.Int64("booking_id", b.ID))
		} else {
			// captured after the window closed, needs a manual refund
			log.Error("capture could not be applied",
				zap.Int64("booking_id", b.ID),
				zap.String("status", string(cur.Status)),
				zap.String("payment_status", string(cur.PaymentStatus)))
		}
		s.recordCapture(ctx, orderID, pay.ID, pay.Method, now)
		return nil
	}

	s.recordCapture(ctx, orderID, pay.ID, pay.Method, now)
	event := notification.TypeBookingConfirmed
	amount := cur.AdvancePaid
	if leg == domain.LegRemaining {
		event = notification.TypeRemainingPaid
		amount = cur.RemainingAmount
	}
	s.notifier.Notify(ctx, notification.NewBookingEvent(event, cur, now).
		WithAmount(amount.StringFixed(2)).WithActor(domain.ActorSystem))
	log.Info("capture applied from webhook", zap.Int64("booking_id", b.ID), zap.String("leg", string(leg)))
	return nil
}

// capturedAmount is the payment amount, or the order's amount_paid when an
// order.paid event omits it. Zero never matches a booking.
func capturedAmount(ev *razorpay.WebhookEvent) int64 {
	if amount := ev.Payload.Payment.Entity.Amount; amount != 0 {
		return amount
	}
	if ev.Event == razorpay.EventOrderPaid {
		return ev.Payload.Order.Entity.AmountPaid
	}
	return 0
}

func legSettled(b *domain.Booking, leg domain.PaymentLeg) bool {
	if leg == domain.LegRemaining {
		return b.PaymentStatus == domain.PaymentFullyPaid
	}
	return b.Status != domain.BookingPending && b.PaymentStatus != domain.PaymentPending
}

func (s *Service) applyFailure(ctx context.Context, ev *razorpay.WebhookEvent, log *zap.Logger) error {
	pay := ev.Payload.Payment.Entity
	orderID := orderIDOf(ev)
	if orderID == "" {
		return nil
	}
	reason := pay.ErrorDescription
	if reason == "" {
		reason = pay.ErrorCode
	}
	if err := s.payments.MarkFailed(ctx, orderID, pay.ID, reason); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	log.Info("payment failed", zap.String("order_id", orderID), zap.String("reason", reason))
	return nil
}
