// Package catalog exposes the provider services whose pricing and schedule
// rules the booking engine reads.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"saheli/internal/domain"
	"saheli/internal/modules/booking"
	"saheli/internal/repository"
)

type serviceRepo interface {
	Create(ctx context.Context, s *domain.Service) error
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
	ListByProvider(ctx context.Context, providerID int64) ([]domain.Service, error)
}

type userRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type Service struct {
	services serviceRepo
	users    userRepo
	log      *zap.Logger
}

func NewService(services serviceRepo, users userRepo, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{services: services, users: users, log: log.Named("catalog")}
}

func (s *Service) GetService(ctx context.Context, id int64) (*ServiceView, error) {
	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, booking.Errorf(booking.ErrNotFound, "service not found")
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	view := &ServiceView{Service: svc}
	if u, err := s.users.GetByID(ctx, svc.ProviderID); err == nil {
		view.Provider = &ProviderSummary{
			ID:                     u.ID,
			Name:                   u.Name,
			CompletedBookingsCount: u.CompletedBookingsCount,
			Verified:               u.HasVerifiedBadge(),
		}
	} else {
		s.log.Warn("load provider for service", zap.Int64("service_id", id), zap.Error(err))
	}
	return view, nil
}

func (s *Service) ListByProvider(ctx context.Context, providerID int64) ([]domain.Service, error) {
	return s.services.ListByProvider(ctx, providerID)
}

// CreateService stores a new offering for providerID after checking the rules
// pricing and availability depend on.
func (s *Service) CreateService(ctx context.Context, providerID int64, req CreateServiceRequest) (*domain.Service, error) {
	svc := &domain.Service{
		ProviderID:          providerID,
		Title:               req.Title,
		PricingType:         domain.PricingType(req.PricingType),
		BasePrice:           req.BasePrice,
		AdvancePercentage:   req.AdvancePercentage,
		TravelFee:           req.TravelFee,
		WeekendPremium:      req.WeekendPremium,
		Mode:                domain.ServiceMode(req.Mode),
		UnavailableDates:    req.UnavailableDates,
		AdvanceBookingLimit: req.AdvanceBookingLimit,
		CancellationPolicy:  req.CancellationPolicy,
		IsActive:            true,
	}

	if svc.BasePrice.IsNegative() || svc.TravelFee.IsNegative() {
		return nil, booking.Errorf(booking.ErrValidation, "prices cannot be negative")
	}
	switch svc.PricingType {
	case domain.PricingPackage:
		if len(req.Packages) == 0 {
			return nil, booking.Errorf(booking.ErrValidation, "package pricing needs at least one package")
		}
	default:
		if !svc.BasePrice.IsPositive() {
			return nil, booking.Errorf(booking.ErrValidation, "basePrice must be greater than zero")
		}
	}
	for _, p := range req.Packages {
		if !p.Price.IsPositive() {
			return nil, booking.Errorf(booking.ErrValidation, "package %q needs a positive price", p.Name)
		}
		svc.Packages = append(svc.Packages, domain.Package{
			Name: p.Name, Price: p.Price, Description: p.Description, Duration: p.Duration,
		})
	}

	seen := make(map[string]bool, len(req.WeeklySchedule))
	for _, d := range req.WeeklySchedule {
		if seen[d.Day] {
			return nil, booking.Errorf(booking.ErrValidation, "%s is listed twice in the schedule", d.Day)
		}
		seen[d.Day] = true

		day := domain.DaySchedule{Day: d.Day}
		for _, sl := range d.Slots {
			day.Slots = append(day.Slots, domain.TimeRange{Start: sl.Start, End: sl.End})
		}
		if err := checkSlots(day.Slots); err != nil {
			return nil, booking.Errorf(booking.ErrValidation, "%s: %v", d.Day, err)
		}
		svc.WeeklySchedule = append(svc.WeeklySchedule, day)
	}

	for _, t := range req.RefundTiers {
		svc.RefundTiers = append(svc.RefundTiers, domain.RefundTier{MinHours: t.MinHours, Percentage: t.Percentage})
	}

	if err := s.services.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.log.Info("service created", zap.Int64("service_id", svc.ID), zap.Int64("provider_id", providerID))
	return svc, nil
}

// checkSlots requires every slot to be non-empty and slots not to overlap.
func checkSlots(slots []domain.TimeRange) error {
	type span struct{ start, end int }
	spans := make([]span, 0, len(slots))
	for _, sl := range slots {
		start, err := domain.ClockMinutes(sl.Start)
		if err != nil {
			return err
		}
		end, err := domain.ClockMinutes(sl.End)
		if err != nil {
			return err
		}
		if end <= start {
			return fmt.Errorf("slot %s-%s ends before it starts", sl.Start, sl.End)
		}
		spans = append(spans, span{start, end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return errors.New("slots overlap")
		}
	}
	return nil
}
