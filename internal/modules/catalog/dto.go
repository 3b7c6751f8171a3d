package catalog

import (
	"github.com/shopspring/decimal"

	"saheli/internal/domain"
)

type PackageInput struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=500"`
	Duration    string          `json:"duration" validate:"max=50"`
}

type SlotInput struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

type DayInput struct {
	Day   string      `json:"day" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Slots []SlotInput `json:"slots" validate:"dive"`
}

type TierInput struct {
	MinHours   float64 `json:"minHours" validate:"gte=0"`
	Percentage int     `json:"percentage" validate:"gte=0,lte=100"`
}

type CreateServiceRequest struct {
	Title               string          `json:"title" validate:"required,max=200"`
	PricingType         string          `json:"pricingType" validate:"required,oneof=Hourly Fixed Package"`
	BasePrice           decimal.Decimal `json:"basePrice"`
	Packages            []PackageInput  `json:"packages" validate:"dive"`
	AdvancePercentage   int             `json:"advancePercentage" validate:"gte=0,lte=50"`
	TravelFee           decimal.Decimal `json:"travelFee"`
	WeekendPremium      int             `json:"weekendPremium" validate:"gte=0,lte=15"`
	Mode                string          `json:"mode" validate:"required,oneof=Online Onsite Hybrid"`
	WeeklySchedule      []DayInput      `json:"weeklySchedule" validate:"required,min=1,dive"`
	UnavailableDates    []string        `json:"unavailableDates" validate:"dive,isodate"`
	AdvanceBookingLimit int             `json:"advanceBookingLimit" validate:"gte=0,lte=365"`
	CancellationPolicy  string          `json:"cancellationPolicy" validate:"max=1000"`
	RefundTiers         []TierInput     `json:"refundTiers" validate:"dive"`
}

type ProviderSummary struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	CompletedBookingsCount int    `json:"completedBookingsCount"`
	Verified               bool   `json:"verified"`
}

// ServiceView is the public read model consumed by booking clients.
type ServiceView struct {
	Service  *domain.Service  `json:"service"`
	Provider *ProviderSummary `json:"provider,omitempty"`
}
