package booking

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
	"saheli/internal/modules/pricing"
	"saheli/internal/notification"
	"saheli/internal/pkg/lock"
	"saheli/internal/repository"
)

const (
	expiryReason      = "payment not completed"
	orderFailedReason = "payment order could not be created"
	defaultSweepBatch = 200
	defaultListLimit  = 20
	maxListLimit      = 100
)

type Config struct {
	Location          *time.Location
	Currency          string
	PaymentWindow     time.Duration
	ManualStartLead   time.Duration
	AutoStartGrace    time.Duration
	AutoCompleteGrace time.Duration
	ReminderLead      time.Duration
	SlotLockTTL       time.Duration
	SweepBatch        int
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Currency == "" {
		c.Currency = "INR"
	}
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 15 * time.Minute
	}
	if c.ManualStartLead <= 0 {
		c.ManualStartLead = 30 * time.Minute
	}
	if c.AutoStartGrace <= 0 {
		c.AutoStartGrace = 15 * time.Minute
	}
	if c.AutoCompleteGrace <= 0 {
		c.AutoCompleteGrace = 30 * time.Minute
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = time.Hour
	}
	if c.SlotLockTTL <= 0 {
		c.SlotLockTTL = 10 * time.Second
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = defaultSweepBatch
	}
	return c
}

type Deps struct {
	Bookings BookingStore
	Catalog  ServiceCatalog
	Payments PaymentLedger
	Gateway  Gateway
	Locker   lock.Locker
	Expiry   ExpiryScheduler
	Notifier notification.Notifier
	Logger   *zap.Logger
}

type Service struct {
	bookings BookingStore
	catalog  ServiceCatalog
	payments PaymentLedger
	gateway  Gateway
	locker   lock.Locker
	expiry   ExpiryScheduler
	notifier notification.Notifier
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLogNotifier(log)
	}
	return &Service{
		bookings: d.Bookings,
		catalog:  d.Catalog,
		payments: d.Payments,
		gateway:  d.Gateway,
		locker:   locker,
		expiry:   d.Expiry,
		notifier: notifier,
		log:      log.Named("booking"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// today is the current calendar day in the business timezone, as midnight UTC
// so it compares directly with domain.ParseDate results.
func (s *Service) today() time.Time {
	t := s.now().In(s.cfg.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) CreateBooking(ctx context.Context, customerID int64, req CreateBookingRequest) (*CreateResult, error) {
	now := s.now().UTC()

	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, Errorf(ErrValidation, "date must be in YYYY-MM-DD format")
	}

	svc, err := s.catalog.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Errorf(ErrNotFound, "service not found")
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if svc.ProviderID == customerID {
		return nil, Errorf(ErrForbidden, "you cannot book your own service")
	}
	if svc.Mode.RequiresTravel() && req.Address == "" {
		return nil, Errorf(ErrValidation, "address is required for onsite services")
	}
	if svc.PricingType == domain.PricingPackage && req.SelectedPackageIndex == nil {
		return nil, Errorf(ErrValidation, "selectedPackageIndex is required for package services")
	}
	if err := s.validateSlot(svc, date, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	quote, err := pricing.Calculate(svc, pricing.Request{
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		PackageIndex: req.SelectedPackageIndex,
	})
	if err != nil {
		return nil, Wrap(ErrValidation, err, err.Error())
	}

	startAt, _ := domain.At(date, req.StartTime, s.cfg.Location)
	endAt, _ := domain.At(date, req.EndTime, s.cfg.Location)
	expiresAt := now.Add(s.cfg.PaymentWindow)

	b := &domain.Booking{
		ServiceID:         svc.ID,
		ProviderID:        svc.ProviderID,
		CustomerID:        customerID,
		BookingDate:       req.Date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		DurationHours:     quote.DurationHours,
		ScheduledStartAt:  startAt.UTC(),
		ScheduledEndAt:    endAt.UTC(),
		ServiceType:       svc.Mode,
		PricingType:       svc.PricingType,
		SelectedPackage:   quote.Package,
		Address:           req.Address,
		Notes:             req.Notes,
		BaseAmount:        quote.BaseAmount,
		TravelFee:         quote.TravelFee,
		WeekendPremium:    quote.WeekendPremium,
		IsWeekend:         quote.IsWeekend,
		TotalAmount:       quote.TotalAmount,
		AdvancePercentage: quote.AdvancePercentage,
		AdvancePaid:       quote.AdvancePaid,
		RemainingAmount:   quote.RemainingAmount,
		PaymentStatus:     domain.PaymentPending,
		Status:            domain.BookingPending,
		ExpiresAt:         &expiresAt,
	}

	if err := s.reserve(ctx, b, now); err != nil {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   pricing.MinorUnits(b.AdvancePaid),
		Currency: s.cfg.Currency,
		Receipt:  uuid.NewString(),
		Notes: map[string]string{
			"booking_id": strconv.FormatInt(b.ID, 10),
			"leg":        string(domain.LegAdvance),
		},
	})
	if err == nil {
		err = s.bookings.SetAdvanceOrder(ctx, b.ID, order.ID)
	}
	if err != nil {
		s.log.Error("advance order creation failed",
			zap.Int64("booking_id", b.ID), zap.Error(err))
		if _, cerr := s.bookings.Cancel(ctx, b.ID, []domain.BookingStatus{domain.BookingPending},
			domain.ActorSystem, orderFailedReason, s.now().UTC()); cerr != nil {
			s.log.Error("cancel booking after order failure",
				zap.Int64("booking_id", b.ID), zap.Error(cerr))
		}
		return nil, Wrap(ErrExternalService, err, "could not create payment order, please try again")
	}
	b.AdvanceOrderID = order.ID

	if err := s.payments.Create(ctx, &domain.PaymentRecord{
		BookingID: b.ID,
		Leg:       domain.LegAdvance,
		OrderID:   order.ID,
		Amount:    b.AdvancePaid,
		Currency:  s.cfg.Currency,
		Status:    domain.PaymentRecordCreated,
	}); err != nil {
		s.log.Warn("payment ledger write failed", zap.Int64("booking_id", b.ID), zap.String("order_id", order.ID), zap.Error(err))
	}

	if s.expiry != nil {
		if err := s.expiry.ScheduleExpiry(ctx, b.ID, expiresAt); err != nil {
			s.log.Warn("schedule expiry failed, sweep will pick it up", zap.Int64("booking_id", b.ID), zap.Error(err))
		}
	}

	s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingCreated, b, now).
		WithAmount(b.TotalAmount.StringFixed(2)))

	s.log.Info("booking created",
		zap.Int64("booking_id", b.ID),
		zap.Int64("service_id", b.ServiceID),
		zap.String("date", b.BookingDate),
		zap.String("start", b.StartTime),
		zap.String("end", b.EndTime))

	return &CreateResult{
		Booking: b,
		GatewayOrder: GatewayOrder{
			ID:          order.ID,
			Amount:      b.AdvancePaid,
			AmountMinor: pricing.MinorUnits(b.AdvancePaid),
			Currency:    s.cfg.Currency,
		},
		GatewayPublicKey: s.gateway.KeyID(),
	}, nil
}

// reserve serializes writers for one service/day with a distributed lock and
// lets the storage transaction make the final decision.
func (s *Service) reserve(ctx context.Context, b *domain.Booking, now time.Time) error {
	key := fmt.Sprintf("slot:%d:%s", b.ServiceID, b.BookingDate)
	lease, err := s.locker.Acquire(ctx, key, s.cfg.SlotLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return Errorf(ErrSlotUnavailable, "this slot is being booked by someone else, please try again")
		}
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug("release slot lock", zap.String("key", key), zap.Error(err))
		}
	}()

	if err := s.bookings.ReserveSlot(ctx, b, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			return Errorf(ErrSlotUnavailable, "selected time slot is no longer available")
		case errors.Is(err, repository.ErrNotFound):
			return Errorf(ErrNotFound, "service not found")
		}
		return fmt.Errorf("reserve slot: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Errorf(ErrNotFound, "booking not found")
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

// GetBooking returns a booking visible to userID.
func (s *Service) GetBooking(ctx context.Context, userID, id int64) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(userID) {
		return nil, Errorf(ErrForbidden, "you do not have access to this booking")
	}
	return b, nil
}

func normalizeFilter(status string, limit, offset int) (repository.ListFilter, error) {
	f := repository.ListFilter{Limit: limit, Offset: offset}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if status != "" {
		st, err := domain.ParseBookingStatus(status)
		if err != nil {
			return f, Errorf(ErrValidation, "unknown status %q", status)
		}
		f.Status = st
	}
	return f, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID int64, status string, limit, offset int) ([]domain.Booking, error) {
	f, err := normalizeFilter(status, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListByCustomer(ctx, customerID, f)
}

func (s *Service) ListForProvider(ctx context.Context, providerID int64, status string, limit, offset int) ([]domain.Booking, error) {
	f, err := normalizeFilter(status, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListByProvider(ctx, providerID, f)
}
