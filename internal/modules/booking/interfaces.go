package booking

import (
	"context"
	"time"

	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/repository"
)

// BookingStore is the persistence the booking service needs.
type BookingStore interface {
	ActiveOn(ctx context.Context, serviceID int64, date string, now time.Time) ([]domain.Booking, error)
	ReserveSlot(ctx context.Context, b *domain.Booking, now time.Time) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID int64, f repository.ListFilter) ([]domain.Booking, error)
	ListByProvider(ctx context.Context, providerID int64, f repository.ListFilter) ([]domain.Booking, error)
	SetAdvanceOrder(ctx context.Context, id int64, orderID string) error

	Cancel(ctx context.Context, id int64, from []domain.BookingStatus, by domain.Actor, reason string, now time.Time) (bool, error)
	Expire(ctx context.Context, id int64, reason string, now time.Time) (bool, error)
	Start(ctx context.Context, id int64, by domain.Actor, now time.Time) (bool, error)
	Complete(ctx context.Context, id int64, by domain.Actor, now time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error)

	ApplyRefund(ctx context.Context, id int64, e repository.RefundEntry, now time.Time) (*domain.Booking, error)
	RecordRefundFailure(ctx context.Context, id int64, reason string) error

	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	ListStartCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
	ListCompleteCandidates(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
	ListReminderCandidates(ctx context.Context, now time.Time, lead time.Duration, limit int) ([]domain.Booking, error)
}

// ServiceCatalog is the read-only view of provider services.
type ServiceCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
}

type PaymentLedger interface {
	Create(ctx context.Context, p *domain.PaymentRecord) error
	ListByBooking(ctx context.Context, bookingID int64) ([]domain.PaymentRecord, error)
	MarkRefunded(ctx context.Context, orderID string) error
}

// Gateway is the slice of the payment gateway used for orders and refunds.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	RefundPayment(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*razorpay.Refund, error)
}

// ExpiryScheduler arranges for a Pending booking to be expired at a given time.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, bookingID int64, at time.Time) error
}
