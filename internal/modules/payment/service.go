// Package payment reconciles gateway payments with bookings. Checkout-return
// verification and webhooks both end in the same conditional update, so
// whichever arrives second is a no-op.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/modules/booking"
	"saheli/internal/modules/pricing"
	"saheli/internal/notification"
	"saheli/internal/pkg/cooldown"
	"saheli/internal/repository"
)

type Config struct {
	Currency          string
	RemainingCooldown time.Duration
}

type Deps struct {
	Bookings bookingStore
	Payments paymentLedger
	Gateway  gateway
	Cooldown cooldown.Store
	Notifier notification.Notifier
	Logger   *zap.Logger
}

type Service struct {
	bookings bookingStore
	payments paymentLedger
	gateway  gateway
	cooldown cooldown.Store
	notifier notification.Notifier
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.RemainingCooldown <= 0 {
		cfg.RemainingCooldown = 30 * time.Second
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cd := d.Cooldown
	if cd == nil {
		cd = cooldown.NewMemoryStore()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLogNotifier(log)
	}
	return &Service{
		bookings: d.Bookings,
		payments: d.Payments,
		gateway:  d.Gateway,
		cooldown: cd,
		notifier: notifier,
		log:      log.Named("payment"),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) load(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, booking.Errorf(booking.ErrNotFound, "booking not found")
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

// VerifyAdvance confirms a Pending booking from the checkout-return payload.
// The signature is checked against the order stored on the booking, never the
// one the client sent.
func (s *Service) VerifyAdvance(ctx context.Context, customerID int64, req VerifyRequest) (*VerifyResult, error) {
	b, err := s.load(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, booking.Errorf(booking.ErrForbidden, "you do not have access to this booking")
	}
	if b.AdvanceOrderID == "" || req.OrderID != b.AdvanceOrderID {
		return nil, booking.Errorf(booking.ErrPaymentVerification, "order does not belong to this booking")
	}
	if !s.gateway.VerifyPaymentSignature(b.AdvanceOrderID, req.PaymentID, req.Signature) {
		s.log.Warn("advance signature mismatch",
			zap.Int64("booking_id", b.ID), zap.String("order_id", b.AdvanceOrderID))
		return nil, booking.Errorf(booking.ErrPaymentVerification, "payment signature is invalid")
	}

	if b.Status != domain.BookingPending {
		if b.IsPaid() && b.AdvancePaymentID == req.PaymentID {
			return &VerifyResult{Booking: b, AlreadyApplied: true}, nil
		}
		return nil, &domain.TransitionError{From: b.Status, To: domain.BookingConfirmed}
	}
	now := s.now().UTC()
	if b.IsExpired(now) {
		return nil, booking.Errorf(booking.ErrPaymentWindowExpired, "payment window has expired, please book again")
	}

	capture := repository.PaymentCapture{OrderID: b.AdvanceOrderID, PaymentID: req.PaymentID, Signature: req.Signature}
	ok, err := s.bookings.ConfirmAdvance(ctx, b.ID, capture, now)
	if err != nil {
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	cur, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		switch {
		case cur.IsPaid() && cur.AdvancePaymentID == req.PaymentID:
			return &VerifyResult{Booking: cur, AlreadyApplied: true}, nil
		case cur.IsExpired(now):
			return nil, booking.Errorf(booking.ErrPaymentWindowExpired, "payment window has expired, please book again")
		default:
			return nil, &domain.TransitionError{From: cur.Status, To: domain.BookingConfirmed}
		}
	}

	s.recordCapture(ctx, b.AdvanceOrderID, req.PaymentID, "", now)
	s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingConfirmed, cur, now).
		WithAmount(cur.AdvancePaid.StringFixed(2)).WithActor(domain.ActorCustomer))
	s.log.Info("advance payment verified",
		zap.Int64("booking_id", cur.ID), zap.String("payment_id", req.PaymentID))
	return &VerifyResult{Booking: cur}, nil
}

// CreateRemainingOrder opens the second payment leg for a completed booking.
// Repeated calls inside the cooldown return the order that is already open.
func (s *Service) CreateRemainingOrder(ctx context.Context, customerID, bookingID int64) (*RemainingOrderResult, error) {
	b, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, booking.Errorf(booking.ErrForbidden, "you do not have access to this booking")
	}
	if b.Status != domain.BookingCompleted {
		return nil, booking.Errorf(booking.ErrValidation, "remaining payment opens once the booking is completed")
	}
	if b.PaymentStatus != domain.PaymentAdvancePaid || !b.RemainingAmount.IsPositive() {
		return nil, booking.Errorf(booking.ErrValidation, "booking has no outstanding balance")
	}

	key := "remaining-order:" + strconv.FormatInt(b.ID, 10)
	claimed, err := s.cooldown.Claim(ctx, key, s.cfg.RemainingCooldown)
	if err != nil {
		s.log.Warn("cooldown unavailable, creating order anyway", zap.Int64("booking_id", b.ID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		if b.RemainingOrderID != "" {
			return s.remainingResult(b, b.RemainingOrderID, true), nil
		}
		return nil, booking.Errorf(booking.ErrRateLimited, "a payment order is already being created, try again shortly")
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   pricing.MinorUnits(b.RemainingAmount),
		Currency: s.cfg.Currency,
		Receipt:  uuid.NewString(),
		Notes: map[string]string{
			"booking_id": strconv.FormatInt(b.ID, 10),
			"leg":        string(domain.LegRemaining),
		},
	})
	if err != nil {
		if rerr := s.cooldown.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.log.Warn("release cooldown", zap.String("key", key), zap.Error(rerr))
		}
		s.log.Error("remaining order creation failed", zap.Int64("booking_id", b.ID), zap.Error(err))
		return nil, booking.Wrap(booking.ErrExternalService, err, "could not create payment order, please try again")
	}

	ok, err := s.bookings.SetRemainingOrder(ctx, b.ID, order.ID)
	if err != nil {
		return nil, fmt.Errorf("store remaining order: %w", err)
	}
	if !ok {
		return nil, booking.Errorf(booking.ErrValidation, "booking has no outstanding balance")
	}

	if err := s.payments.Create(ctx, &domain.PaymentRecord{
		BookingID: b.ID,
		Leg:       domain.LegRemaining,
		OrderID:   order.ID,
		Amount:    b.RemainingAmount,
		Currency:  s.cfg.Currency,
		Status:    domain.PaymentRecordCreated,
	}); err != nil {
		s.log.Warn("payment ledger write failed", zap.Int64("booking_id", b.ID), zap.String("order_id", order.ID), zap.Error(err))
	}

	s.log.Info("remaining order created", zap.Int64("booking_id", b.ID), zap.String("order_id", order.ID))
	return s.remainingResult(b, order.ID, false), nil
}

func (s *Service) remainingResult(b *domain.Booking, orderID string, reused bool) *RemainingOrderResult {
	return &RemainingOrderResult{
		BookingID: b.ID,
		GatewayOrder: booking.GatewayOrder{
			ID:          orderID,
			Amount:      b.RemainingAmount,
			AmountMinor: pricing.MinorUnits(b.RemainingAmount),
			Currency:    s.cfg.Currency,
		},
		GatewayPublicKey: s.gateway.KeyID(),
		Reused:           reused,
	}
}

// VerifyRemaining settles the balance. Only the remaining-leg order matches
// here, so an advance signature can never close it.
func (s *Service) VerifyRemaining(ctx context.Context, customerID int64, req VerifyRequest) (*VerifyResult, error) {
	b, err := s.load(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, booking.Errorf(booking.ErrForbidden, "you do not have access to this booking")
	}
	if b.RemainingOrderID == "" || req.OrderID != b.RemainingOrderID {
		return nil, booking.Errorf(booking.ErrPaymentVerification, "order does not match the remaining payment")
	}
	if !s.gateway.VerifyPaymentSignature(b.RemainingOrderID, req.PaymentID, req.Signature) {
		s.log.Warn("remaining signature mismatch",
			zap.Int64("booking_id", b.ID), zap.String("order_id", b.RemainingOrderID))
		return nil, booking.Errorf(booking.ErrPaymentVerification, "payment signature is invalid")
	}
	if b.PaymentStatus == domain.PaymentFullyPaid && b.RemainingPaymentID == req.PaymentID {
		return &VerifyResult{Booking: b, AlreadyApplied: true}, nil
	}
	if b.PaymentStatus != domain.PaymentAdvancePaid {
		return nil, booking.Errorf(booking.ErrValidation, "booking has no outstanding balance")
	}

	now := s.now().UTC()
	capture := repository.PaymentCapture{OrderID: b.RemainingOrderID, PaymentID: req.PaymentID, Signature: req.Signature}
	ok, err := s.bookings.MarkRemainingPaid(ctx, b.ID, capture, now)
	if err != nil {
		return nil, fmt.Errorf("mark remaining paid: %w", err)
	}
	cur, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if cur.PaymentStatus == domain.PaymentFullyPaid && cur.RemainingPaymentID == req.PaymentID {
			return &VerifyResult{Booking: cur, AlreadyApplied: true}, nil
		}
		return nil, booking.Errorf(booking.ErrValidation, "booking has no outstanding balance")
	}

	s.recordCapture(ctx, b.RemainingOrderID, req.PaymentID, "", now)
	s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeRemainingPaid, cur, now).
		WithAmount(cur.RemainingAmount.StringFixed(2)).WithActor(domain.ActorCustomer))
	s.log.Info("remaining payment verified",
		zap.Int64("booking_id", cur.ID), zap.String("payment_id", req.PaymentID))
	return &VerifyResult{Booking: cur}, nil
}

func (s *Service) recordCapture(ctx context.Context, orderID, paymentID, method string, at time.Time) {
	changed, err := s.payments.MarkCapturedIdempotent(ctx, orderID, paymentID, method, at)
	if err != nil {
		s.log.Warn("payment ledger capture failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if !changed {
		s.log.Debug("payment already captured in ledger", zap.String("order_id", orderID))
	}
}
