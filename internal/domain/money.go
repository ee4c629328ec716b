package domain

import (
	"github.com/shopspring/decimal"
)

// Amounts are stored as BIGINT minor units (cents) to avoid floating point
// errors. Fee percentages go through shopspring/decimal so that
// fee(amount, pct) is exact integer arithmetic with half-up rounding.

// Service fee percentages are clamped to the platform's allowed band.
const (
	MinFeePercent = 5
	MaxFeePercent = 15

	DefaultFeePercent = 10
)

// ClampFeePercent forces pct into the [MinFeePercent, MaxFeePercent] band.
func ClampFeePercent(pct decimal.Decimal) decimal.Decimal {
	min := decimal.NewFromInt(MinFeePercent)
	max := decimal.NewFromInt(MaxFeePercent)
	if pct.LessThan(min) {
		return min
	}
	if pct.GreaterThan(max) {
		return max
	}
	return pct
}

// ServiceFee computes the platform commission: round(amount * pct / 100).
func ServiceFee(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).
		Mul(pct).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

// TotalWithFee returns amount plus its service fee.
func TotalWithFee(amount int64, pct decimal.Decimal) int64 {
	return amount + ServiceFee(amount, pct)
}

// FormatAmount renders a minor-unit amount as a decimal string, e.g. 110000 -> "1100.00".
func FormatAmount(amount int64) string {
	return decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}
