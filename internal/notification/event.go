package notification

import (
	"time"

	"saheli/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
)

// Event type constants
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
	TypeBookingExpired   = "booking.expired"
	TypeBookingStarted   = "booking.started"
	TypeBookingCompleted = "booking.completed"
	TypeBookingReminder  = "booking.reminder"
	TypeRemainingPaid    = "payment.remaining_paid"
	TypeRefundIssued     = "payment.refunded"
	TypeRefundFailed     = "payment.refund_failed"
)

// Event is the payload published for every booking state change. It carries
// enough context for an email/push collaborator to render a message without
// reading the database.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	BookingID     int64     `json:"booking_id"`
	ServiceID     int64     `json:"service_id"`
	CustomerID    int64     `json:"customer_id"`
	ProviderID    int64     `json:"provider_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	BookingDate   string    `json:"booking_date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Amount        string    `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBookingEvent snapshots b into an event of the given type.
func NewBookingEvent(typ string, b *domain.Booking, at time.Time) Event {
	return Event{
		ID:            watermill.NewUUID(),
		Type:          typ,
		BookingID:     b.ID,
		ServiceID:     b.ServiceID,
		CustomerID:    b.CustomerID,
		ProviderID:    b.ProviderID,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		BookingDate:   b.BookingDate,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		OccurredAt:    at.UTC(),
	}
}

func (e Event) WithAmount(amount string) Event {
	e.Amount = amount
	return e
}

func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

func (e Event) WithActor(actor domain.Actor) Event {
	e.Actor = string(actor)
	return e
}

// Recipients are the users who should see the event on the live feed.
func (e Event) Recipients() []int64 {
	switch {
	case e.CustomerID != 0 && e.ProviderID != 0 && e.CustomerID != e.ProviderID:
		return []int64{e.CustomerID, e.ProviderID}
	case e.CustomerID != 0:
		return []int64{e.CustomerID}
	case e.ProviderID != 0:
		return []int64{e.ProviderID}
	}
	return nil
}
