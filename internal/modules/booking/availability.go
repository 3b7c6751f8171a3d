package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saheli/internal/domain"
	"saheli/internal/repository"
)

// validateSlot checks the requested range against the service's calendar.
// Conflicts with other bookings are decided later inside the reservation.
func (s *Service) validateSlot(svc *domain.Service, date time.Time, start, end string) error {
	if !svc.Bookable() {
		return Errorf(ErrValidation, "service is not accepting bookings")
	}

	startMin, err := domain.ClockMinutes(start)
	if err != nil {
		return Errorf(ErrValidation, "startTime must be in HH:MM format")
	}
	endMin, err := domain.ClockMinutes(end)
	if err != nil {
		return Errorf(ErrValidation, "endTime must be in HH:MM format")
	}
	if endMin <= startMin {
		return Errorf(ErrValidation, "endTime must be after startTime")
	}

	today := s.today()
	if date.Before(today) {
		return Errorf(ErrValidation, "cannot book a date in the past")
	}
	limit := svc.EffectiveBookingLimit()
	if date.After(today.AddDate(0, 0, limit)) {
		return Errorf(ErrValidation, "bookings can be made at most %d days in advance", limit)
	}
	if date.Equal(today) {
		startAt, _ := domain.At(date, start, s.cfg.Location)
		if !startAt.After(s.now()) {
			return Errorf(ErrValidation, "start time has already passed")
		}
	}
	if svc.IsUnavailableOn(date) {
		return Errorf(ErrValidation, "provider is unavailable on %s", date.Format(domain.DateLayout))
	}

	slots := svc.SlotsFor(date)
	if len(slots) == 0 {
		return Errorf(ErrValidation, "provider does not work on %s", date.Weekday())
	}
	for _, slot := range slots {
		if slot.Start <= start && end <= slot.End {
			return nil
		}
	}
	return Errorf(ErrValidation, "requested time %s-%s is outside the provider's schedule", start, end)
}

// GetAvailability lists the day's configured slots, each flagged booked when
// an active booking overlaps it.
func (s *Service) GetAvailability(ctx context.Context, serviceID int64, dateStr string) (*Availability, error) {
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		return nil, Errorf(ErrValidation, "date must be in YYYY-MM-DD format")
	}

	svc, err := s.catalog.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Errorf(ErrNotFound, "service not found")
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	out := &Availability{
		ServiceID:   serviceID,
		Date:        dateStr,
		Unavailable: !svc.Bookable() || svc.IsUnavailableOn(date) || date.Before(s.today()),
		Slots:       []SlotStatus{},
	}

	slots := svc.SlotsFor(date)
	if len(slots) == 0 {
		return out, nil
	}

	var active []domain.Booking
	if !out.Unavailable {
		active, err = s.bookings.ActiveOn(ctx, serviceID, dateStr, s.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("load active bookings: %w", err)
		}
	}

	for _, slot := range slots {
		st := SlotStatus{StartTime: slot.Start, EndTime: slot.End, Available: !out.Unavailable}
		for _, b := range active {
			if domain.Overlaps(slot.Start, slot.End, b.StartTime, b.EndTime) {
				st.Available = false
				break
			}
		}
		out.Slots = append(out.Slots, st)
	}
	return out, nil
}
