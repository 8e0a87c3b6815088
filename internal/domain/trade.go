package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() decimal.Decimal {
	if s == OrderSideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Trade is a single public execution.
type Trade struct {
	Coin  string          `json:"coin"`
	Side  OrderSide       `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Time  time.Time       `json:"time"`
	Hash  string          `json:"hash,omitempty"`
	TID   int64           `json:"tid,omitempty"`
}

// Valid reports whether the trade carries a usable price and size.
func (t Trade) Valid() bool {
	return t.Price.IsPositive() && t.Size.IsPositive()
}
