package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PricingType string

const (
	PricingHourly  PricingType = "Hourly"
	PricingFixed   PricingType = "Fixed"
	PricingPackage PricingType = "Package"
)

type ServiceMode string

const (
	ModeOnline ServiceMode = "Online"
	ModeOnsite ServiceMode = "Onsite"
	ModeHybrid ServiceMode = "Hybrid"
)

// RequiresTravel reports whether the provider travels to the customer.
func (m ServiceMode) RequiresTravel() bool {
	return m == ModeOnsite || m == ModeHybrid
}

const (
	DefaultAdvancePercentage   = 20
	MaxAdvancePercentage       = 50
	MaxWeekendPremium          = 15
	DefaultAdvanceBookingLimit = 30
)

type Package struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Duration    string          `json:"duration,omitempty"`
}

type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DaySchedule struct {
	Day   string      `json:"day"`
	Slots []TimeRange `json:"slots"`
}

// RefundTier grants Percentage of the advance when cancelled at least
// MinHours before the scheduled start.
type RefundTier struct {
	MinHours   float64 `json:"min_hours"`
	Percentage int     `json:"percentage"`
}

// Service is a provider's bookable offering as seen by the booking engine.
type Service struct {
	ID                  int64                            `json:"id" gorm:"primaryKey"`
	ProviderID          int64                            `json:"provider_id" gorm:"index;not null"`
	Title               string                           `json:"title" gorm:"not null"`
	PricingType         PricingType                      `json:"pricing_type" gorm:"type:varchar(20);not null"`
	BasePrice           decimal.Decimal                  `json:"base_price" gorm:"type:decimal(12,2)"`
	Packages            datatypes.JSONSlice[Package]     `json:"packages,omitempty"`
	AdvancePercentage   int                              `json:"advance_percentage"`
	TravelFee           decimal.Decimal                  `json:"travel_fee" gorm:"type:decimal(12,2)"`
	WeekendPremium      int                              `json:"weekend_premium"`
	Mode                ServiceMode                      `json:"mode" gorm:"type:varchar(20);not null"`
	WeeklySchedule      datatypes.JSONSlice[DaySchedule] `json:"weekly_schedule"`
	UnavailableDates    datatypes.JSONSlice[string]      `json:"unavailable_dates,omitempty"`
	AdvanceBookingLimit int                              `json:"advance_booking_limit"`
	IsActive            bool                             `json:"is_active"`
	IsPaused            bool                             `json:"is_paused"`
	CancellationPolicy  string                           `json:"cancellation_policy,omitempty" gorm:"type:text"`
	RefundTiers         datatypes.JSONSlice[RefundTier]  `json:"refund_tiers,omitempty"`
	CreatedAt           time.Time                        `json:"created_at"`
	UpdatedAt           time.Time                        `json:"updated_at"`
}

func (s *Service) Bookable() bool {
	return s.IsActive && !s.IsPaused
}

// SlotsFor returns the configured slots for the weekday of date.
func (s *Service) SlotsFor(date time.Time) []TimeRange {
	day := date.Weekday().String()
	for _, d := range s.WeeklySchedule {
		if d.Day == day {
			return d.Slots
		}
	}
	return nil
}

func (s *Service) IsUnavailableOn(date time.Time) bool {
	key := date.Format(DateLayout)
	for _, d := range s.UnavailableDates {
		if len(d) >= len(DateLayout) && d[:len(DateLayout)] == key {
			return true
		}
	}
	return false
}

// EffectiveAdvancePercentage applies the default and clamps to the allowed range.
func (s *Service) EffectiveAdvancePercentage() int {
	switch {
	case s.AdvancePercentage <= 0:
		return DefaultAdvancePercentage
	case s.AdvancePercentage > MaxAdvancePercentage:
		return MaxAdvancePercentage
	default:
		return s.AdvancePercentage
	}
}

func (s *Service) EffectiveBookingLimit() int {
	if s.AdvanceBookingLimit <= 0 {
		return DefaultAdvanceBookingLimit
	}
	return s.AdvanceBookingLimit
}
