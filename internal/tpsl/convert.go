// Package tpsl converts take-profit and stop-loss orders between trigger
// price, percent P&L and dollar P&L.
package tpsl

import (
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Kind selects the take-profit or stop-loss leg.
type Kind string

const (
	TakeProfit Kind = "take_profit"
	StopLoss   Kind = "stop_loss"
)

// Direction is the direction of the position being protected.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// DirectionOf maps an order side to the position direction it opens.
func DirectionOf(side domain.OrderSide) Direction {
	if side == domain.OrderSideSell {
		return Short
	}
	return Long
}

// Multiplier is +1 when the leg profits from a rising price relative to
// entry and −1 otherwise: long TP and short SL are +1.
func Multiplier(dir Direction, kind Kind) decimal.Decimal {
	up := (dir == Long) == (kind == TakeProfit)
	if up {
		return one
	}
	return one.Neg()
}

// PercentFromPrice returns multiplier × leverage × (target/entry − 1) × 100.
// It is zero when entry is zero.
func PercentFromPrice(target, entry, leverage decimal.Decimal, dir Direction, kind Kind) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return Multiplier(dir, kind).Mul(leverage).Mul(target.Div(entry).Sub(one)).Mul(hundred)
}

// DollarFromPrice returns multiplier × (size × entry) × (target − entry) /
// entry. It is zero when entry is zero.
func DollarFromPrice(target, entry, positionSize decimal.Decimal, dir Direction, kind Kind) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	usd := positionSize.Abs().Mul(entry)
	return Multiplier(dir, kind).Mul(usd).Mul(target.Sub(entry)).Div(entry)
}

// PriceFromPercent returns entry × (1 + multiplier × percent/100/leverage).
// It is zero when leverage is not positive.
func PriceFromPercent(percent, entry, leverage decimal.Decimal, dir Direction, kind Kind) decimal.Decimal {
	if !leverage.IsPositive() {
		return decimal.Zero
	}
	move := Multiplier(dir, kind).Mul(percent).Div(hundred).Div(leverage)
	return entry.Mul(one.Add(move))
}

// PriceFromDollar returns entry + multiplier × dollar / size. It is zero
// when the size is zero.
func PriceFromDollar(dollar, entry, positionSize decimal.Decimal, dir Direction, kind Kind) decimal.Decimal {
	size := positionSize.Abs()
	if size.IsZero() {
		return decimal.Zero
	}
	return entry.Add(Multiplier(dir, kind).Mul(dollar).Div(size))
}

// Validate reports whether target sits on the correct side of threshold:
// for a long, take profit above and stop loss below; the reverse for a
// short. Non-positive prices are invalid.
func Validate(target, threshold decimal.Decimal, dir Direction, kind Kind) bool {
	if !target.IsPositive() {
		return false
	}
	if Multiplier(dir, kind).IsPositive() {
		return target.GreaterThan(threshold)
	}
	return target.LessThan(threshold)
}
