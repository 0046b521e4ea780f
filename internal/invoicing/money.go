package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Parsed numbers are limited to the magnitudes a float64 can hold.
const (
	maxDecimalExponent = 308
	minDecimalExponent = -324
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Round2 rounds an amount to cents, half away from zero.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// ParseDecimal decodes a user-typed number that may use either "." or "," as the
// decimal separator. Only the first comma is treated as a separator. Input that does
// not parse, or lies outside the float64 range, yields zero.
func ParseDecimal(raw string) decimal.Decimal {
	s := strings.TrimSpace(strings.Replace(raw, ",", ".", 1))
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil || !WithinFloatRange(v) {
		return decimal.Zero
	}
	return v
}

// WithinFloatRange reports whether v can be written as a float64 without overflowing
// or vanishing to zero.
func WithinFloatRange(v decimal.Decimal) bool {
	if v.IsZero() {
		return true
	}
	exp := int64(v.Exponent())
	if exp < minDecimalExponent-maxDecimalExponent {
		return false
	}
	adjusted := exp + int64(v.NumDigits()) - 1
	return adjusted >= minDecimalExponent && adjusted <= maxDecimalExponent
}

// vatFactor returns 1 + rate/100.
func vatFactor(ratePercent decimal.Decimal) decimal.Decimal {
	return one.Add(ratePercent.Div(hundred))
}

// InclusivePrice derives the VAT-inclusive unit price from an exclusive one.
func InclusivePrice(excl, vatRatePercent decimal.Decimal) decimal.Decimal {
	return Round2(excl.Mul(vatFactor(vatRatePercent)))
}

// ExclusivePrice derives the VAT-exclusive unit price from an inclusive one.
func ExclusivePrice(incl, vatRatePercent decimal.Decimal) decimal.Decimal {
	factor := vatFactor(vatRatePercent)
	if factor.Sign() <= 0 {
		return Round2(incl)
	}
	return Round2(incl.Div(factor))
}

// Percent returns amount * percent / 100 without rounding.
func Percent(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}
