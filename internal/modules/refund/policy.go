// Package refund decides how much of an advance payment goes back to the
// customer when a booking is cancelled.
package refund

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"saheli/internal/domain"
	"saheli/internal/modules/pricing"
)

// Source records which rule produced a percentage.
type Source string

const (
	SourceTiers    Source = "tiers"
	SourcePolicy   Source = "policy"
	SourceDefault  Source = "default"
	SourceProvider Source = "provider"
)

var (
	fullRefundPattern = regexp.MustCompile(`(?i)(full|100%?)\s*refund.*?(\d+)\s*hours?`)
	halfRefundPattern = regexp.MustCompile(`(?i)50%?\s*.*?(\d+)\s*hours?`)
	noRefundPattern   = regexp.MustCompile(`(?i)no\s+refund|non-refundable`)
)

var defaultTiers = []domain.RefundTier{
	{MinHours: 48, Percentage: 100},
	{MinHours: 24, Percentage: 75},
	{MinHours: 12, Percentage: 50},
	{MinHours: 6, Percentage: 25},
}

type Decision struct {
	Percentage int
	Amount     decimal.Decimal
	Source     Source
}

// Percentage picks the refund percentage for a customer cancellation made
// hoursUntilStart hours before the scheduled start. Structured tiers win over
// policy text; unparseable text falls back to the default tiers.
func Percentage(svc *domain.Service, hoursUntilStart float64) (int, Source) {
	if svc != nil && len(svc.RefundTiers) > 0 {
		return fromTiers(svc.RefundTiers, hoursUntilStart), SourceTiers
	}
	if svc != nil {
		if pct, ok := ParsePolicy(svc.CancellationPolicy, hoursUntilStart); ok {
			return pct, SourcePolicy
		}
	}
	return DefaultPercentage(hoursUntilStart), SourceDefault
}

// ParsePolicy is a best-effort reading of free-text policies such as
// "Full refund if cancelled 24 hours before, 50% refund 12 hours before".
// ok is false when no known phrase is present or when every cutoff it names
// has passed, so the default tiers decide. A policy that only says it is
// non-refundable yields 0 with ok true.
func ParsePolicy(text string, hoursUntilStart float64) (pct int, ok bool) {
	policy := strings.ToLower(strings.TrimSpace(text))
	if policy == "" {
		return 0, false
	}

	hasCutoff := false
	if m := fullRefundPattern.FindStringSubmatch(policy); m != nil {
		hasCutoff = true
		if threshold, err := strconv.Atoi(m[2]); err == nil && hoursUntilStart >= float64(threshold) {
			return 100, true
		}
	}
	if m := halfRefundPattern.FindStringSubmatch(policy); m != nil {
		hasCutoff = true
		if threshold, err := strconv.Atoi(m[1]); err == nil && hoursUntilStart >= float64(threshold) {
			return 50, true
		}
	}
	if !hasCutoff && noRefundPattern.MatchString(policy) {
		return 0, true
	}
	return 0, false
}

func DefaultPercentage(hoursUntilStart float64) int {
	return fromTiers(defaultTiers, hoursUntilStart)
}

func fromTiers(tiers []domain.RefundTier, hours float64) int {
	sorted := make([]domain.RefundTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinHours > sorted[j].MinHours })

	for _, t := range sorted {
		if hours >= t.MinHours {
			return clampPct(t.Percentage)
		}
	}
	return 0
}

func clampPct(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Amount applies pct to the advance and caps the result at what has not been
// refunded yet.
func Amount(b *domain.Booking, pct int) decimal.Decimal {
	amt := pricing.Percent(b.AdvancePaid, clampPct(pct))
	if left := b.RefundableAmount(); amt.GreaterThan(left) {
		return left
	}
	return amt
}

// ForCustomer computes the refund owed when the customer cancels.
func ForCustomer(svc *domain.Service, b *domain.Booking, hoursUntilStart float64) Decision {
	pct, src := Percentage(svc, hoursUntilStart)
	return Decision{Percentage: pct, Amount: Amount(b, pct), Source: src}
}

// ForProvider always returns whatever is left of the advance.
func ForProvider(b *domain.Booking) Decision {
	return Decision{Percentage: 100, Amount: b.RefundableAmount(), Source: SourceProvider}
}
