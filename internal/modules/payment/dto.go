package payment

import (
	"saheli/internal/domain"
	"saheli/internal/modules/booking"
)

// VerifyRequest is what checkout hands back to the client after payment.
type VerifyRequest struct {
	BookingID int64  `json:"bookingId" validate:"required,gt=0"`
	OrderID   string `json:"gatewayOrderId" validate:"required,max=64"`
	PaymentID string `json:"gatewayPaymentId" validate:"required,max=64"`
	Signature string `json:"gatewaySignature" validate:"required,max=256"`
}

type VerifyResult struct {
	Booking *domain.Booking `json:"booking"`
	// AlreadyApplied is set when another confirmation path got there first.
	AlreadyApplied bool `json:"alreadyApplied"`
}

type RemainingOrderResult struct {
	BookingID        int64                `json:"bookingId"`
	GatewayOrder     booking.GatewayOrder `json:"gatewayOrder"`
	GatewayPublicKey string               `json:"gatewayPublicKey"`
	Reused           bool                 `json:"reused"`
}
