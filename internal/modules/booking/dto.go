package booking

import (
	"github.com/shopspring/decimal"

	"saheli/internal/domain"
	"saheli/internal/modules/refund"
)

type CreateBookingRequest struct {
	ServiceID            int64  `json:"serviceId" validate:"required,gt=0"`
	Date                 string `json:"date" validate:"required,isodate"`
	StartTime            string `json:"startTime" validate:"required,hhmm"`
	EndTime              string `json:"endTime" validate:"required,hhmm"`
	Address              string `json:"address" validate:"max=500"`
	Notes                string `json:"notes" validate:"max=1000"`
	SelectedPackageIndex *int   `json:"selectedPackageIndex" validate:"omitempty,gte=0"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=500"`
}

// GatewayOrder is what the client needs to open checkout.
type GatewayOrder struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amountMinor"`
	Currency    string          `json:"currency"`
}

type CreateResult struct {
	Booking          *domain.Booking `json:"booking"`
	GatewayOrder     GatewayOrder    `json:"gatewayOrder"`
	GatewayPublicKey string          `json:"gatewayPublicKey"`
}

type SlotStatus struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Available bool   `json:"available"`
}

type Availability struct {
	ServiceID   int64        `json:"serviceId"`
	Date        string       `json:"date"`
	Unavailable bool         `json:"unavailable"`
	Slots       []SlotStatus `json:"slots"`
}

// Refund outcome statuses.
const (
	RefundNone      = "none"
	RefundProcessed = "processed"
	RefundFailed    = "failed"
)

type RefundSummary struct {
	Status     string          `json:"status"`
	Percentage int             `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	Source     refund.Source   `json:"source,omitempty"`
	RefundID   string          `json:"refundId,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type CancelResult struct {
	Booking *domain.Booking `json:"booking"`
	Refund  RefundSummary   `json:"refund"`
}
