package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// BookSide identifies one side of an order book.
type BookSide string

const (
	BookSideBid BookSide = "bid"
	BookSideAsk BookSide = "ask"
)

// PriceLevel is a single aggregated price entry as delivered by the feed.
type PriceLevel struct {
	Price  decimal.Decimal
	Size   decimal.Decimal
	Orders uint32
}

// Valid reports whether the level can be placed in a ladder. Zero-size
// levels are valid input but are treated as absent.
func (l PriceLevel) Valid() bool {
	return l.Price.IsPositive() && !l.Size.IsNegative()
}

// BookSnapshot is a full replacement of both sides of a book. It is never a
// delta.
type BookSnapshot struct {
	Coin string
	Bids []PriceLevel
	Asks []PriceLevel
	Time time.Time
}

// BookLevel is a ladder entry with the cumulative size from the best price
// outward.
type BookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Total  decimal.Decimal `json:"total"`
	Orders uint32          `json:"orders"`
}

// Spread is the distance between the best ask and the best bid.
type Spread struct {
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// BookView is an immutable, render-ready picture of one subscription's book.
type BookView struct {
	Coin      string      `json:"coin"`
	Precision Precision   `json:"precision"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Spread    Spread      `json:"spread"`
	Changed   []string    `json:"changed"`
	Time      time.Time   `json:"time"`
	Seq       uint64      `json:"seq"`
}

// Precision selects the server-side price aggregation of a depth feed. The
// zero value requests full precision.
type Precision struct {
	SigFigs  int `json:"sig_figs,omitempty"`
	Mantissa int `json:"mantissa,omitempty"`
}

// Validate checks the aggregation against the values the exchange accepts:
// SigFigs is 0 or 2..5 and Mantissa (1, 2 or 5) is only allowed at 5
// significant figures.
func (p Precision) Validate() error {
	if p.SigFigs != 0 && (p.SigFigs < 2 || p.SigFigs > 5) {
		return fmt.Errorf("%w: sig_figs %d not in 2..5", ErrInvalidSubscription, p.SigFigs)
	}
	switch p.Mantissa {
	case 0:
	case 1, 2, 5:
		if p.SigFigs != 5 {
			return fmt.Errorf("%w: mantissa requires sig_figs 5", ErrInvalidSubscription)
		}
	default:
		return fmt.Errorf("%w: mantissa %d not one of 1, 2, 5", ErrInvalidSubscription, p.Mantissa)
	}
	return nil
}

// Subscription is the (coin, precision) pair one reconciler is bound to.
type Subscription struct {
	Coin      string    `json:"coin"`
	Precision Precision `json:"precision"`
}

// Validate checks the coin is set and the precision is acceptable.
func (s Subscription) Validate() error {
	if s.Coin == "" {
		return fmt.Errorf("%w: coin is empty", ErrInvalidSubscription)
	}
	return s.Precision.Validate()
}

// Key returns a stable identifier for the subscription.
func (s Subscription) Key() string {
	return s.Coin + ":" + strconv.Itoa(s.Precision.SigFigs) + ":" + strconv.Itoa(s.Precision.Mantissa)
}
