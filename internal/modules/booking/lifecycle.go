package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"saheli/internal/domain"
	"saheli/internal/notification"
)

// Start moves a Confirmed booking to InProgress on the provider's request. It
// is allowed from ManualStartLead before the scheduled start.
func (s *Service) Start(ctx context.Context, providerID, id int64) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, Errorf(ErrForbidden, "only the provider can start this booking")
	}
	if err := domain.CheckTransition(b.Status, domain.BookingInProgress); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if now.Before(b.ScheduledStartAt.Add(-s.cfg.ManualStartLead)) {
		return nil, Errorf(ErrValidation, "booking can be started at most %d minutes before its scheduled time",
			int(s.cfg.ManualStartLead.Minutes()))
	}

	ok, err := s.bookings.Start(ctx, id, domain.ActorProvider, now)
	if err != nil {
		return nil, fmt.Errorf("start booking: %w", err)
	}
	return s.afterTransition(ctx, id, ok, domain.BookingInProgress, notification.TypeBookingStarted, domain.ActorProvider)
}

// Complete moves an InProgress booking to Completed on the provider's request.
func (s *Service) Complete(ctx context.Context, providerID, id int64) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, Errorf(ErrForbidden, "only the provider can complete this booking")
	}
	if err := domain.CheckTransition(b.Status, domain.BookingCompleted); err != nil {
		return nil, err
	}

	ok, err := s.bookings.Complete(ctx, id, domain.ActorProvider, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}
	return s.afterTransition(ctx, id, ok, domain.BookingCompleted, notification.TypeBookingCompleted, domain.ActorProvider)
}

// afterTransition reloads the booking and reports a lost race as an invalid
// transition from whatever state the winner left behind.
func (s *Service) afterTransition(ctx context.Context, id int64, ok bool, to domain.BookingStatus, event string, by domain.Actor) (*domain.Booking, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, transitionErr(cur.Status, to)
	}
	s.notifier.Notify(ctx, notification.NewBookingEvent(event, cur, s.now()).WithActor(by))
	s.log.Info("booking transitioned",
		zap.Int64("booking_id", id),
		zap.String("status", string(to)),
		zap.String("by", string(by)))
	return cur, nil
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	Candidates int
	Processed  int
	Skipped    int
	Failed     int
}

// ExpirePending cancels Pending bookings whose payment window closed.
func (s *Service) ExpirePending(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	list, err := s.bookings.ListExpiredPending(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expired bookings: %w", err)
	}
	return s.sweep(ctx, "expire", list, func(b *domain.Booking) (bool, error) {
		ok, err := s.bookings.Expire(ctx, b.ID, expiryReason, now)
		if ok {
			b.Status = domain.BookingCancelled
			s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingExpired, b, now).
				WithReason(expiryReason).WithActor(domain.ActorSystem))
		}
		return ok, err
	}), nil
}

// ExpireOne expires a single booking if its window has closed. It is the
// target of the delayed per-booking task; early or repeated calls are no-ops.
func (s *Service) ExpireOne(ctx context.Context, id int64) (bool, error) {
	now := s.now().UTC()
	ok, err := s.bookings.Expire(ctx, id, expiryReason, now)
	if err != nil {
		return false, fmt.Errorf("expire booking %d: %w", id, err)
	}
	if ok {
		if b, err := s.bookings.GetByID(ctx, id); err == nil {
			s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingExpired, b, now).
				WithReason(expiryReason).WithActor(domain.ActorSystem))
		}
		s.log.Info("booking expired", zap.Int64("booking_id", id))
	}
	return ok, nil
}

// AutoStart starts Confirmed bookings AutoStartGrace after their scheduled start.
func (s *Service) AutoStart(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	list, err := s.bookings.ListStartCandidates(ctx, now.Add(-s.cfg.AutoStartGrace), s.cfg.SweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list start candidates: %w", err)
	}
	return s.sweep(ctx, "auto_start", list, func(b *domain.Booking) (bool, error) {
		if now.Before(b.ScheduledStartAt.Add(s.cfg.AutoStartGrace)) {
			return false, nil
		}
		ok, err := s.bookings.Start(ctx, b.ID, domain.ActorSystem, now)
		if ok {
			b.Status = domain.BookingInProgress
			s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingStarted, b, now).
				WithActor(domain.ActorSystem))
		}
		return ok, err
	}), nil
}

// AutoComplete completes InProgress bookings AutoCompleteGrace after their
// scheduled end.
func (s *Service) AutoComplete(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	list, err := s.bookings.ListCompleteCandidates(ctx, now.Add(-s.cfg.AutoCompleteGrace), s.cfg.SweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list complete candidates: %w", err)
	}
	return s.sweep(ctx, "auto_complete", list, func(b *domain.Booking) (bool, error) {
		if now.Before(b.ScheduledEndAt.Add(s.cfg.AutoCompleteGrace)) {
			return false, nil
		}
		ok, err := s.bookings.Complete(ctx, b.ID, domain.ActorSystem, now)
		if ok {
			b.Status = domain.BookingCompleted
			s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingCompleted, b, now).
				WithActor(domain.ActorSystem))
		}
		return ok, err
	}), nil
}

// SendReminders notifies both parties of Confirmed bookings starting within
// ReminderLead. The flag is set before notifying so a reminder goes out once.
func (s *Service) SendReminders(ctx context.Context) (SweepResult, error) {
	now := s.now().UTC()
	list, err := s.bookings.ListReminderCandidates(ctx, now, s.cfg.ReminderLead, s.cfg.SweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list reminder candidates: %w", err)
	}
	return s.sweep(ctx, "reminder", list, func(b *domain.Booking) (bool, error) {
		ok, err := s.bookings.MarkReminderSent(ctx, b.ID, now)
		if ok {
			s.notifier.Notify(ctx, notification.NewBookingEvent(notification.TypeBookingReminder, b, now))
		}
		return ok, err
	}), nil
}

// sweep applies fn to each candidate. An error on one booking is logged and
// the rest are still processed.
func (s *Service) sweep(ctx context.Context, name string, list []domain.Booking, fn func(*domain.Booking) (bool, error)) SweepResult {
	res := SweepResult{Candidates: len(list)}
	for i := range list {
		if ctx.Err() != nil {
			break
		}
		b := &list[i]
		ok, err := fn(b)
		switch {
		case err != nil:
			res.Failed++
			s.log.Error("sweep item failed",
				zap.String("sweep", name),
				zap.Int64("booking_id", b.ID),
				zap.Error(err))
		case ok:
			res.Processed++
		default:
			res.Skipped++
		}
	}
	if res.Candidates > 0 {
		s.log.Info("sweep finished",
			zap.String("sweep", name),
			zap.Int("candidates", res.Candidates),
			zap.Int("processed", res.Processed),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
	return res
}
