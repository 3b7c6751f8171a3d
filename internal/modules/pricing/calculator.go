// Package pricing turns a service's pricing rules and a requested slot into
// the amounts stored on a booking.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"saheli/internal/domain"
)

var (
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrInvalidPackage   = errors.New("selected package does not exist")
	ErrUnknownPricing   = errors.New("unknown pricing type")
)

var (
	hundred     = decimal.NewFromInt(100)
	minutesHour = decimal.NewFromInt(60)
)

type Request struct {
	Date         time.Time
	StartTime    string
	EndTime      string
	PackageIndex *int
}

type Quote struct {
	DurationHours     decimal.Decimal
	BaseAmount        decimal.Decimal
	WeekendPremium    decimal.Decimal
	TravelFee         decimal.Decimal
	TotalAmount       decimal.Decimal
	AdvancePercentage int
	AdvancePaid       decimal.Decimal
	RemainingAmount   decimal.Decimal
	IsWeekend         bool
	Package           *domain.PackageSnapshot
}

// Calculate is pure: it reads svc and req and never touches storage.
func Calculate(svc *domain.Service, req Request) (*Quote, error) {
	startMin, err := domain.ClockMinutes(req.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := domain.ClockMinutes(req.EndTime)
	if err != nil {
		return nil, err
	}
	if endMin <= startMin {
		return nil, ErrInvalidTimeRange
	}

	q := &Quote{
		DurationHours:     decimal.NewFromInt(int64(endMin - startMin)).Div(minutesHour).Round(2),
		AdvancePercentage: svc.EffectiveAdvancePercentage(),
	}

	switch svc.PricingType {
	case domain.PricingHourly:
		q.BaseAmount = svc.BasePrice.Mul(decimal.NewFromInt(int64(endMin - startMin))).Div(minutesHour).Round(2)
	case domain.PricingFixed:
		q.BaseAmount = svc.BasePrice
	case domain.PricingPackage:
		if req.PackageIndex == nil || *req.PackageIndex < 0 || *req.PackageIndex >= len(svc.Packages) {
			return nil, ErrInvalidPackage
		}
		p := svc.Packages[*req.PackageIndex]
		q.BaseAmount = p.Price
		q.Package = &domain.PackageSnapshot{
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			Duration:    p.Duration,
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPricing, svc.PricingType)
	}

	wd := req.Date.Weekday()
	q.IsWeekend = wd == time.Saturday || wd == time.Sunday
	q.WeekendPremium = decimal.Zero
	if q.IsWeekend && svc.WeekendPremium > 0 {
		q.WeekendPremium = Percent(q.BaseAmount, svc.WeekendPremium)
	}

	q.TravelFee = decimal.Zero
	if svc.Mode.RequiresTravel() {
		q.TravelFee = svc.TravelFee
	}

	q.TotalAmount = q.BaseAmount.Add(q.WeekendPremium).Add(q.TravelFee)
	q.AdvancePaid = Percent(q.TotalAmount, q.AdvancePercentage)
	q.RemainingAmount = q.TotalAmount.Sub(q.AdvancePaid)
	return q, nil
}

// Percent returns amount*pct/100 rounded half-up to a whole currency unit.
func Percent(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(0)
}

// MinorUnits converts a currency amount to the gateway's smallest unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(hundred)
}
