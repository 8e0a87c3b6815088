// Package pricefmt rounds prices to the exchange's significant-figure and
// decimal-place rule.
package pricefmt

import "github.com/shopspring/decimal"

const (
	// MaxSigFigs is the number of significant figures a price may carry.
	MaxSigFigs = 5
	// PerpMaxDecimals is the decimal budget of perpetual prices before the
	// asset's size decimals are subtracted.
	PerpMaxDecimals = 6
)

// Formatter applies the price rule for one market class.
type Formatter struct {
	MaxDecimals int
}

// Perp returns the formatter for perpetual markets.
func Perp() Formatter { return Formatter{MaxDecimals: PerpMaxDecimals} }

// Places returns the number of decimal places allowed for value: at most
// MaxSigFigs significant figures and at most MaxDecimals − szDecimals
// decimals. Values with five or more integer digits get zero places.
func (f Formatter) Places(value decimal.Decimal, szDecimals int) int32 {
	maxDecimals := f.MaxDecimals - szDecimals
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	if value.IsZero() {
		return int32(maxDecimals)
	}

	v := value.Abs()
	exp := v.NumDigits() + int(v.Exponent()) - 1
	places := MaxSigFigs - 1 - exp
	if places > maxDecimals {
		places = maxDecimals
	}
	if places < 0 {
		places = 0
	}
	return int32(places)
}

// Round returns value rounded half away from zero to the allowed places.
// Integers are always valid and returned unchanged.
func (f Formatter) Round(value decimal.Decimal, szDecimals int) decimal.Decimal {
	if value.Equal(value.Truncate(0)) {
		return value
	}
	return value.Round(f.Places(value, szDecimals))
}

// Format returns the rounded price as a string without trailing zeros.
func (f Formatter) Format(value decimal.Decimal, szDecimals int) string {
	return f.Round(value, szDecimals).String()
}

// Tick returns the smallest price increment allowed around value.
func (f Formatter) Tick(value decimal.Decimal, szDecimals int) decimal.Decimal {
	return decimal.New(1, -f.Places(value, szDecimals))
}
