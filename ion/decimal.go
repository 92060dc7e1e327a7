package ion

import (
	"fmt"
	"math"
	"strconv"
)

// Decimal is an Ion decimal: Coefficient × 10^Exponent.
type Decimal struct {
	Coefficient int64
	Exponent    int32
}

// DecimalFromFloat rounds f to places fractional digits and strips trailing
// zeros, so 1.50 and 1.5 produce the same encoding.
func DecimalFromFloat(f float64, places int) (Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Decimal{}, fmt.Errorf("%w: decimal from %v", ErrInvalidValue, f)
	}
	if places < 0 || places > 9 {
		return Decimal{}, fmt.Errorf("%w: decimal places %d", ErrInvalidValue, places)
	}
	scaled := math.Round(f * math.Pow10(places))
	if math.Abs(scaled) >= math.MaxInt64/10 {
		return Decimal{}, fmt.Errorf("%w: decimal %v out of range", ErrInvalidValue, f)
	}
	return Decimal{Coefficient: int64(scaled), Exponent: int32(-places)}.Normalize(), nil
}

// Normalize removes trailing zeros from the coefficient. Zero normalises to
// 0d0.
func (d Decimal) Normalize() Decimal {
	if d.Coefficient == 0 {
		return Decimal{}
	}
	for d.Coefficient%10 == 0 && d.Exponent < 0 {
		d.Coefficient /= 10
		d.Exponent++
	}
	return d
}

// Float64 returns the nearest float64.
func (d Decimal) Float64() float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func (d Decimal) String() string {
	return strconv.FormatInt(d.Coefficient, 10) + "e" + strconv.FormatInt(int64(d.Exponent), 10)
}
