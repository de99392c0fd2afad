package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeTier maps an amount range to a fee formula and a flat points reward.
// Active tiers must not overlap; a nil MaxAmount means unbounded.
type FeeTier struct {
	TierID                     uuid.UUID
	MinAmount                  decimal.Decimal
	MaxAmount                  *decimal.Decimal
	FixedFee                   decimal.Decimal
	PercentageFee              decimal.Decimal
	ExtraDurationFeePercentage decimal.Decimal
	PointsReward               int64
	Active                     bool
	CreatedAt                  time.Time
	DeactivatedAt              *time.Time
}

// Contains reports whether amount falls inside the tier's range.
func (t FeeTier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	if t.MaxAmount != nil && amount.GreaterThan(*t.MaxAmount) {
		return false
	}
	return true
}

// FeeQuote is the outcome of a schedule lookup for one transaction.
type FeeQuote struct {
	Fee          decimal.Decimal
	PointsReward int64
}

var oneHundred = decimal.NewFromInt(100)

// QuoteFee selects the matching tier and applies the fee formula.
//
// Tier selection picks the highest MinAmount among active tiers containing
// the amount. The duration surcharge applies once when the escrow runs a day
// or longer; it is not compounded per day. The result is rounded half-up to
// two decimal places. No matching tier quotes a zero fee and zero reward.
func QuoteFee(tiers []FeeTier, amount decimal.Decimal, durationHours int) FeeQuote {
	var selected *FeeTier
	for i := range tiers {
		t := tiers[i]
		if !t.Active || !t.Contains(amount) {
			continue
		}
		if selected == nil || t.MinAmount.GreaterThan(selected.MinAmount) {
			selected = &tiers[i]
		}
	}
	if selected == nil {
		return FeeQuote{Fee: decimal.Zero}
	}

	fee := selected.FixedFee.Add(amount.Mul(selected.PercentageFee).Div(oneHundred))
	if durationHours >= 24 {
		fee = fee.Add(fee.Mul(selected.ExtraDurationFeePercentage).Div(oneHundred))
	}
	return FeeQuote{
		Fee:          fee.Round(2),
		PointsReward: selected.PointsReward,
	}
}
