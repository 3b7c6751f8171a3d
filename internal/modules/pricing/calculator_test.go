package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saheli/internal/domain"
)

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func assertAmount(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(amount(want)), "%s: want %d got %s", field, want, got)
}

func mustDate(t *testing.T, s string) Request {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return Request{Date: d}
}

func TestCalculate_HourlyWeekendOnsite(t *testing.T) {
	svc := &domain.Service{
		PricingType:       domain.PricingHourly,
		BasePrice:         amount(500),
		WeekendPremium:    10,
		TravelFee:         amount(100),
		Mode:              domain.ModeOnsite,
		AdvancePercentage: 20,
	}
	req := mustDate(t, "2025-06-07") // Saturday
	req.StartTime, req.EndTime = "10:00", "13:00"

	q, err := Calculate(svc, req)
	require.NoError(t, err)

	assert.True(t, q.IsWeekend)
	assertAmount(t, 3, q.DurationHours, "duration")
	assertAmount(t, 1500, q.BaseAmount, "base")
	assertAmount(t, 150, q.WeekendPremium, "weekend premium")
	assertAmount(t, 100, q.TravelFee, "travel fee")
	assertAmount(t, 1750, q.TotalAmount, "total")
	assertAmount(t, 350, q.AdvancePaid, "advance")
	assertAmount(t, 1400, q.RemainingAmount, "remaining")
}

func TestCalculate_WeekdayOnlineHasNoPremiumOrTravel(t *testing.T) {
	svc := &domain.Service{
		PricingType:       domain.PricingHourly,
		BasePrice:         amount(500),
		WeekendPremium:    10,
		TravelFee:         amount(100),
		Mode:              domain.ModeOnline,
		AdvancePercentage: 20,
	}
	req := mustDate(t, "2025-06-04") // Wednesday
	req.StartTime, req.EndTime = "10:00", "11:30"

	q, err := Calculate(svc, req)
	require.NoError(t, err)

	assert.False(t, q.IsWeekend)
	assertAmount(t, 750, q.BaseAmount, "base")
	assert.True(t, q.WeekendPremium.IsZero())
	assert.True(t, q.TravelFee.IsZero())
	assertAmount(t, 150, q.AdvancePaid, "advance")
	assertAmount(t, 600, q.RemainingAmount, "remaining")
}

func TestCalculate_FixedHybridSunday(t *testing.T) {
	svc := &domain.Service{
		PricingType:       domain.PricingFixed,
		BasePrice:         amount(999),
		WeekendPremium:    15,
		TravelFee:         amount(50),
		Mode:              domain.ModeHybrid,
		AdvancePercentage: 25,
	}
	req := mustDate(t, "2025-06-08") // Sunday
	req.StartTime, req.EndTime = "09:00", "09:30"

	q, err := Calculate(svc, req)
	require.NoError(t, err)

	assertAmount(t, 999, q.BaseAmount, "base")
	// 999 * 15% = 149.85 -> 150
	assertAmount(t, 150, q.WeekendPremium, "weekend premium")
	assertAmount(t, 1199, q.TotalAmount, "total")
	// 1199 * 25% = 299.75 -> 300
	assertAmount(t, 300, q.AdvancePaid, "advance")
	assertAmount(t, 899, q.RemainingAmount, "remaining")
}

func TestCalculate_Package(t *testing.T) {
	svc := &domain.Service{
		PricingType: domain.PricingPackage,
		Packages: []domain.Package{
			{Name: "Basic", Price: amount(1000)},
			{Name: "Bridal", Price: amount(5000), Description: "full look", Duration: "4h"},
		},
		Mode:              domain.ModeOnline,
		AdvancePercentage: 30,
	}
	req := mustDate(t, "2025-06-04")
	req.StartTime, req.EndTime = "10:00", "14:00"
	idx := 1
	req.PackageIndex = &idx

	q, err := Calculate(svc, req)
	require.NoError(t, err)
	require.NotNil(t, q.Package)
	assert.Equal(t, "Bridal", q.Package.Name)
	assertAmount(t, 5000, q.BaseAmount, "base")
	assertAmount(t, 1500, q.AdvancePaid, "advance")

	bad := 5
	req.PackageIndex = &bad
	_, err = Calculate(svc, req)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	req.PackageIndex = nil
	_, err = Calculate(svc, req)
	assert.ErrorIs(t, err, ErrInvalidPackage)
}

func TestCalculate_InvalidInput(t *testing.T) {
	svc := &domain.Service{PricingType: domain.PricingHourly, BasePrice: amount(100), Mode: domain.ModeOnline}

	req := mustDate(t, "2025-06-04")
	req.StartTime, req.EndTime = "12:00", "12:00"
	_, err := Calculate(svc, req)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	req.StartTime, req.EndTime = "7am", "12:00"
	_, err = Calculate(svc, req)
	assert.ErrorIs(t, err, domain.ErrInvalidClock)

	svc.PricingType = "Subscription"
	req.StartTime = "10:00"
	_, err = Calculate(svc, req)
	assert.ErrorIs(t, err, ErrUnknownPricing)
}

func TestCalculate_AdvancePlusRemainingReconstructsTotal(t *testing.T) {
	svc := &domain.Service{
		PricingType:       domain.PricingHourly,
		BasePrice:         decimal.RequireFromString("333.33"),
		WeekendPremium:    7,
		TravelFee:         decimal.RequireFromString("45.5"),
		Mode:              domain.ModeOnsite,
		AdvancePercentage: 35,
	}
	for _, slot := range [][2]string{{"10:00", "10:20"}, {"08:15", "17:40"}, {"23:00", "23:59"}} {
		req := mustDate(t, "2025-06-07")
		req.StartTime, req.EndTime = slot[0], slot[1]
		q, err := Calculate(svc, req)
		require.NoError(t, err)

		assert.True(t, q.AdvancePaid.Add(q.RemainingAmount).Equal(q.TotalAmount))
		assert.True(t, q.BaseAmount.Add(q.WeekendPremium).Add(q.TravelFee).Equal(q.TotalAmount))
		assert.False(t, q.RemainingAmount.IsNegative())
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(35000), MinorUnits(amount(350)))
	assert.Equal(t, int64(4550), MinorUnits(decimal.RequireFromString("45.5")))
	assert.True(t, FromMinorUnits(26300).Equal(amount(263)))
}
