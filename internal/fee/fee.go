// Package fee computes exchange and builder fees for an order.
package fee

import "github.com/shopspring/decimal"

var bpsDivisor = decimal.NewFromInt(10000)

// Default rates as fractions of notional.
var (
	DefaultMakerRate = decimal.RequireFromString("0.00045")
	DefaultTakerRate = decimal.RequireFromString("0.00015")
)

// Calculator holds the maker and taker rates as fractions of notional.
type Calculator struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

// NewCalculator returns a calculator with the default rates.
func NewCalculator() Calculator {
	return Calculator{MakerRate: DefaultMakerRate, TakerRate: DefaultTakerRate}
}

// Fee returns notional × rate plus the optional builder fee in basis
// points.
func (c Calculator) Fee(notional decimal.Decimal, isMaker bool, builderBps *decimal.Decimal) decimal.Decimal {
	rate := c.TakerRate
	if isMaker {
		rate = c.MakerRate
	}
	fee := notional.Mul(rate)
	if builderBps != nil {
		fee = fee.Add(notional.Mul(*builderBps).Div(bpsDivisor))
	}
	return fee
}
