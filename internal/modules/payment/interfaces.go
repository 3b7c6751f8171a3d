package payment

import (
	"context"
	"time"

	"saheli/internal/domain"
	"saheli/internal/gateway/razorpay"
	"saheli/internal/repository"
)

type bookingStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	GetByAdvanceOrderID(ctx context.Context, orderID string) (*domain.Booking, error)
	GetByRemainingOrderID(ctx context.Context, orderID string) (*domain.Booking, error)
	ConfirmAdvance(ctx context.Context, id int64, p repository.PaymentCapture, now time.Time) (bool, error)
	SetRemainingOrder(ctx context.Context, id int64, orderID string) (bool, error)
	MarkRemainingPaid(ctx context.Context, id int64, p repository.PaymentCapture, now time.Time) (bool, error)
}

type paymentLedger interface {
	Create(ctx context.Context, p *domain.PaymentRecord) error
	MarkCapturedIdempotent(ctx context.Context, orderID, paymentID, method string, capturedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, orderID, paymentID, reason string) error
}

type gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}
