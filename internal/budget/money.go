package budget

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	apperrors "budgetkit/internal/errors"
)

// Money is an amount in minor currency units (cents). All aggregation in this
// package happens on Money so that summing many small amounts never drifts.
type Money int64

// minorScale is the number of decimal places in a major unit.
const minorScale = 2

// maxMajor bounds float inputs so that the minor-unit value fits in an int64.
var maxMajor = decimal.NewFromInt(math.MaxInt64).Shift(-minorScale)

// FromMajor converts an aggregator-supplied amount in major units (e.g. 12.34)
// to Money, rounding half away from zero to the nearest minor unit.
// NaN, ±Inf and values outside the int64 minor-unit range are rejected.
func FromMajor(v float64) (Money, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidAmount, "amount must be a finite number")
	}
	d := decimal.NewFromFloat(v)
	if d.Abs().GreaterThan(maxMajor) {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidAmount, "amount is out of range")
	}
	return Money(d.Shift(minorScale).Round(0).IntPart()), nil
}

// ParseMoney parses a decimal string such as "600.00" or "-12.5".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInvalidAmount, err)
	}
	if d.Abs().GreaterThan(maxMajor) {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidAmount, "amount is out of range")
	}
	return Money(d.Shift(minorScale).Round(0).IntPart()), nil
}

// Decimal returns m in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -minorScale)
}

// Major returns m in major units as a float. Use only for presentation.
func (m Money) Major() float64 {
	return m.Decimal().InexactFloat64()
}

// String formats m with exactly two decimals, e.g. "-50.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(minorScale)
}

// FormatMoney renders m for display with locale digit grouping, e.g.
// "1,234.50" for English. Rounding to two decimals happens only here.
func FormatMoney(m Money, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(m.Major(), number.Scale(minorScale)))
}

// FormatPercent renders a percentage with two decimals, or "No Budget Set"
// for the infinite ratio of spending against a zero limit.
func FormatPercent(pct float64, tag language.Tag) string {
	if math.IsInf(pct, 1) {
		return NoBudgetLabel
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%v%%", number.Decimal(pct, number.Scale(minorScale)))
}
