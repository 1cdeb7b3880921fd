package num

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v half-up (away from zero) to the given number of decimal places.
// NaN and infinities collapse to 0.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Round4 is the fixed-point precision used for percentages and ratios.
func Round4(v float64) float64 { return Round(v, 4) }

// Round2 is used for success rates.
func Round2(v float64) float64 { return Round(v, 2) }

// Sub4 returns a-b where both operands are first rounded to 4 places.
// The difference is exact in decimal arithmetic.
func Sub4(a, b float64) float64 {
	da := decimal.NewFromFloat(Round4(a))
	db := decimal.NewFromFloat(Round4(b))
	return da.Sub(db).InexactFloat64()
}

// SafeDiv returns n/d, or 0 when d is zero.
func SafeDiv(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

// PctChange returns (cur-base)/base*100 rounded to 4 places; 0 when base is zero.
func PctChange(cur, base float64) float64 {
	if base == 0 {
		return 0
	}
	return Round4((cur - base) / base * 100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
