package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "Pending"
	BookingConfirmed  BookingStatus = "Confirmed"
	BookingInProgress BookingStatus = "InProgress"
	BookingCompleted  BookingStatus = "Completed"
	BookingCancelled  BookingStatus = "Cancelled"
)

type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "Pending"
	PaymentAdvancePaid PaymentStatus = "AdvancePaid"
	PaymentFullyPaid   PaymentStatus = "FullyPaid"
	PaymentRefunded    PaymentStatus = "Refunded"
)

// Actor identifies who drove a transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorProvider Actor = "provider"
	ActorSystem   Actor = "system"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var validTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled},
	BookingConfirmed:  {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted, BookingCancelled},
	BookingCompleted:  {},
	BookingCancelled:  {},
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return st, nil
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// CheckTransition returns a *TransitionError when from -> to is not legal.
func CheckTransition(from, to BookingStatus) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// CancellableStatuses lists the states a booking may be cancelled from.
var CancellableStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingInProgress}

type PackageSnapshot struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Duration    string          `json:"duration,omitempty"`
}

type Booking struct {
	ID         int64 `json:"id" gorm:"primaryKey"`
	ServiceID  int64 `json:"service_id" gorm:"not null;index:idx_bookings_slot,priority:1"`
	ProviderID int64 `json:"provider_id" gorm:"not null;index"`
	CustomerID int64 `json:"customer_id" gorm:"not null;index"`

	BookingDate      string          `json:"date" gorm:"column:booking_date;type:varchar(10);not null;index:idx_bookings_slot,priority:2"`
	StartTime        string          `json:"start_time" gorm:"type:varchar(5);not null"`
	EndTime          string          `json:"end_time" gorm:"type:varchar(5);not null"`
	DurationHours    decimal.Decimal `json:"duration_hours" gorm:"type:decimal(6,2)"`
	ScheduledStartAt time.Time       `json:"scheduled_start_at" gorm:"index"`
	ScheduledEndAt   time.Time       `json:"scheduled_end_at" gorm:"index"`

	ServiceType     ServiceMode      `json:"service_type" gorm:"type:varchar(20)"`
	PricingType     PricingType      `json:"pricing_type" gorm:"type:varchar(20)"`
	SelectedPackage *PackageSnapshot `json:"selected_package,omitempty" gorm:"serializer:json"`
	Address         string           `json:"address,omitempty" gorm:"type:text"`
	Notes           string           `json:"notes,omitempty" gorm:"type:text"`

	BaseAmount        decimal.Decimal `json:"base_amount" gorm:"type:decimal(12,2)"`
	TravelFee         decimal.Decimal `json:"travel_fee" gorm:"type:decimal(12,2)"`
	WeekendPremium    decimal.Decimal `json:"weekend_premium" gorm:"type:decimal(12,2)"`
	IsWeekend         bool            `json:"is_weekend"`
	TotalAmount       decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2)"`
	AdvancePercentage int             `json:"advance_percentage"`
	AdvancePaid       decimal.Decimal `json:"advance_paid" gorm:"type:decimal(12,2)"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount" gorm:"type:decimal(12,2)"`

	PaymentStatus      PaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null"`
	PaymentMethod      string        `json:"payment_method,omitempty"`
	AdvanceOrderID     string        `json:"advance_order_id,omitempty" gorm:"index"`
	AdvancePaymentID   string        `json:"advance_payment_id,omitempty"`
	AdvanceSignature   string        `json:"-"`
	PaidAt             *time.Time    `json:"paid_at,omitempty"`
	RemainingOrderID   string        `json:"remaining_order_id,omitempty" gorm:"index"`
	RemainingPaymentID string        `json:"remaining_payment_id,omitempty"`
	RemainingSignature string        `json:"-"`
	RemainingPaidAt    *time.Time    `json:"remaining_paid_at,omitempty"`

	Status             BookingStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	ExpiresAt          *time.Time    `json:"expires_at,omitempty" gorm:"index"`
	ActualStartTime    *time.Time    `json:"actual_start_time,omitempty"`
	ActualEndTime      *time.Time    `json:"actual_end_time,omitempty"`
	StartedBy          Actor         `json:"started_by,omitempty" gorm:"type:varchar(20)"`
	CompletedBy        Actor         `json:"completed_by,omitempty" gorm:"type:varchar(20)"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancelledBy        Actor         `json:"cancelled_by,omitempty" gorm:"type:varchar(20)"`
	CancellationReason string        `json:"cancellation_reason,omitempty" gorm:"type:text"`
	ReminderSent       bool          `json:"reminder_sent"`
	ReminderSentAt     *time.Time    `json:"reminder_sent_at,omitempty"`

	RefundAmount     decimal.Decimal `json:"refund_amount" gorm:"type:decimal(12,2)"`
	RefundPercentage int             `json:"refund_percentage"`
	RefundReason     string          `json:"refund_reason,omitempty" gorm:"type:text"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	RefundID         string          `json:"refund_id,omitempty"`
	RefundError      string          `json:"refund_error,omitempty" gorm:"type:text"`

	IsReviewed bool   `json:"is_reviewed"`
	ReviewID   *int64 `json:"review_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether an unpaid Pending booking has outlived its payment window.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == BookingPending && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentAdvancePaid || b.PaymentStatus == PaymentFullyPaid
}

func (b *Booking) IsFullyPaid() bool {
	return b.PaymentStatus == PaymentFullyPaid
}

func (b *Booking) HasRemainingBalance() bool {
	return b.RemainingAmount.IsPositive() && b.PaymentStatus != PaymentFullyPaid
}

func (b *Booking) CanBeReviewed() bool {
	return b.Status == BookingCompleted && !b.IsReviewed
}

func (b *Booking) CanBeCancelled() bool {
	return b.Status.CanTransitionTo(BookingCancelled)
}

// RefundableAmount is what is left of the advance after earlier refunds.
func (b *Booking) RefundableAmount() decimal.Decimal {
	left := b.AdvancePaid.Sub(b.RefundAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// IsParty reports whether userID is the booking's customer or provider.
func (b *Booking) IsParty(userID int64) bool {
	return b.CustomerID == userID || b.ProviderID == userID
}
