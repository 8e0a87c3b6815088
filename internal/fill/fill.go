// Package fill simulates market-like orders against a reconciled book.
package fill

import (
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of walking a ladder for a given size. When Possible
// is false the visible depth cannot absorb the size and every numeric field
// is zero.
type Result struct {
	VWAP            decimal.Decimal `json:"vwap"`
	WorstPrice      decimal.Decimal `json:"worst_price"`
	SlippagePercent decimal.Decimal `json:"slippage_percent"`
	Cost            decimal.Decimal `json:"cost"`
	Possible        bool            `json:"possible"`
}

// Simulate walks levels from the best price outward, consuming size. Pass
// the asks for a buy and the bids for a sell. Slippage is measured against
// referencePrice and is zero when the reference is zero.
func Simulate(levels []domain.BookLevel, size, referencePrice decimal.Decimal) Result {
	if !size.IsPositive() {
		return Result{}
	}

	remaining := size
	cost := decimal.Zero
	var worst decimal.Decimal

	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		if !lvl.Size.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lvl.Size)
		cost = cost.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
		worst = lvl.Price
	}

	if remaining.IsPositive() {
		return Result{}
	}

	vwap := cost.Div(size)
	slippage := decimal.Zero
	if !referencePrice.IsZero() {
		slippage = vwap.Sub(referencePrice).Div(referencePrice).Mul(hundred)
	}

	return Result{
		VWAP:            vwap,
		WorstPrice:      worst,
		SlippagePercent: slippage,
		Cost:            cost,
		Possible:        true,
	}
}

// SimulateSide picks the opposing ladder for side and simulates the fill.
func SimulateSide(bids, asks []domain.BookLevel, side domain.OrderSide, size, referencePrice decimal.Decimal) Result {
	if side == domain.OrderSideSell {
		return Simulate(bids, size, referencePrice)
	}
	return Simulate(asks, size, referencePrice)
}

// SlippageBound returns referencePrice moved by maxSlippagePercent against
// the taker: up for buys, down for sells.
func SlippageBound(side domain.OrderSide, referencePrice, maxSlippagePercent decimal.Decimal) decimal.Decimal {
	factor := maxSlippagePercent.Div(hundred)
	if side == domain.OrderSideSell {
		return referencePrice.Mul(decimal.NewFromInt(1).Sub(factor))
	}
	return referencePrice.Mul(decimal.NewFromInt(1).Add(factor))
}

// OrderPrice returns the limit price for a market-like order. When the book
// cannot absorb size it falls back to the slippage bound; otherwise it
// returns the worst touched price capped by that bound.
func OrderPrice(levels []domain.BookLevel, side domain.OrderSide, size, referencePrice, maxSlippagePercent decimal.Decimal) decimal.Decimal {
	bound := SlippageBound(side, referencePrice, maxSlippagePercent)

	res := Simulate(levels, size, referencePrice)
	if !res.Possible {
		return bound
	}
	if side == domain.OrderSideSell {
		return decimal.Max(res.WorstPrice, bound)
	}
	return decimal.Min(res.WorstPrice, bound)
}
