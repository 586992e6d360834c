package kernel

import (
	"fmt"
	"math"
)

// Money is an amount in minor currency units (paise for INR).
type Money int64

// MoneyFromMajor converts a major-unit amount (5898.82) into minor units,
// rounding half away from zero.
func MoneyFromMajor(v float64) Money {
	return Money(math.Round(v * 100))
}

// Major returns the amount in major units.
func (m Money) Major() float64 {
	return float64(m) / 100
}

// MulRate applies a fractional rate (0.18 for 18%) and rounds to the nearest
// minor unit.
func (m Money) MulRate(rate float64) Money {
	return Money(math.Round(float64(m) * rate))
}

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// String renders the amount with two decimals, e.g. "5898.82".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
