package book

import (
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeSpread returns best ask minus best bid and that distance as a
// percentage of the best ask. A crossed book yields a negative spread. An
// empty side yields the zero spread.
func ComputeSpread(bids, asks Ladder) domain.Spread {
	bid, okBid := bids.Best()
	ask, okAsk := asks.Best()
	if !okBid || !okAsk {
		return domain.Spread{}
	}

	value := ask.Price.Sub(bid.Price)
	if ask.Price.IsZero() {
		return domain.Spread{Value: value}
	}
	return domain.Spread{
		Value:   value,
		Percent: value.Div(ask.Price).Mul(hundred),
	}
}

// Mid returns the midpoint of the best bid and ask, or zero when a side is
// empty.
func Mid(bids, asks Ladder) decimal.Decimal {
	bid, okBid := bids.Best()
	ask, okAsk := asks.Best()
	if !okBid || !okAsk {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}
