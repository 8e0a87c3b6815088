package tpsl

import "github.com/shopspring/decimal"

// PriceRounder rounds a derived price to the instrument's price rule.
type PriceRounder interface {
	Round(value decimal.Decimal, szDecimals int) decimal.Decimal
}

// AnchorKind tags which value of a leg the user edited last.
type AnchorKind string

const (
	AnchorPrice AnchorKind = "price"
	AnchorPnl   AnchorKind = "pnl"
)

// PnlUnit is the unit of a P&L anchor.
type PnlUnit string

const (
	UnitPercent PnlUnit = "percent"
	UnitUSD     PnlUnit = "usd"
)

// Anchor is the single stored value of a leg. Every other value is derived
// from it.
type Anchor struct {
	Kind  AnchorKind      `json:"kind"`
	Unit  PnlUnit         `json:"unit,omitempty"`
	Value decimal.Decimal `json:"value"`
}

// Params are the position facts the conversions depend on. A zero
// Threshold means the entry price.
type Params struct {
	Entry        decimal.Decimal `json:"entry"`
	Threshold    decimal.Decimal `json:"threshold"`
	Leverage     decimal.Decimal `json:"leverage"`
	PositionSize decimal.Decimal `json:"position_size"`
	Direction    Direction       `json:"direction"`
	SzDecimals   int             `json:"sz_decimals"`
}

func (p Params) threshold() decimal.Decimal {
	if p.Threshold.IsZero() {
		return p.Entry
	}
	return p.Threshold
}

// LegQuote is the derived price, percent and dollar triple of one leg.
type LegQuote struct {
	Enabled bool            `json:"enabled"`
	Anchor  *Anchor         `json:"anchor,omitempty"`
	Price   decimal.Decimal `json:"price"`
	Percent decimal.Decimal `json:"percent"`
	Dollar  decimal.Decimal `json:"dollar"`
	Valid   bool            `json:"valid"`
}

// Quote holds both legs.
type Quote struct {
	TakeProfit LegQuote `json:"take_profit"`
	StopLoss   LegQuote `json:"stop_loss"`
}

// Form is the editing state of a TP/SL pair. It is not safe for concurrent
// use.
type Form struct {
	params  Params
	rounder PriceRounder
	anchors map[Kind]*Anchor
}

// NewForm returns an empty form that rounds derived prices with rounder.
func NewForm(params Params, rounder PriceRounder) *Form {
	f := &Form{rounder: rounder, anchors: make(map[Kind]*Anchor, 2)}
	f.SetParams(params)
	return f
}

// SetParams replaces the position facts. A zero position size clears both
// legs.
func (f *Form) SetParams(p Params) {
	f.params = p
	if p.PositionSize.IsZero() {
		f.anchors = make(map[Kind]*Anchor, 2)
	}
}

// Params returns the current position facts.
func (f *Form) Params() Params { return f.params }

// SetPrice anchors kind on a trigger price.
func (f *Form) SetPrice(kind Kind, price decimal.Decimal) {
	f.set(kind, Anchor{Kind: AnchorPrice, Value: price})
}

// SetPercent anchors kind on a percent P&L.
func (f *Form) SetPercent(kind Kind, percent decimal.Decimal) {
	f.set(kind, Anchor{Kind: AnchorPnl, Unit: UnitPercent, Value: percent})
}

// SetDollar anchors kind on a dollar P&L.
func (f *Form) SetDollar(kind Kind, dollar decimal.Decimal) {
	f.set(kind, Anchor{Kind: AnchorPnl, Unit: UnitUSD, Value: dollar})
}

// SetAnchor stores a prebuilt anchor.
func (f *Form) SetAnchor(kind Kind, a Anchor) {
	f.set(kind, a)
}

// Clear removes the anchor of kind.
func (f *Form) Clear(kind Kind) {
	delete(f.anchors, kind)
}

func (f *Form) set(kind Kind, a Anchor) {
	if f.params.PositionSize.IsZero() {
		return
	}
	f.anchors[kind] = &a
}

// Quote derives both legs from their anchors.
func (f *Form) Quote() Quote {
	return Quote{
		TakeProfit: f.leg(TakeProfit),
		StopLoss:   f.leg(StopLoss),
	}
}

func (f *Form) leg(kind Kind) LegQuote {
	a, ok := f.anchors[kind]
	if !ok || f.params.PositionSize.IsZero() {
		return LegQuote{}
	}

	p := f.params
	q := LegQuote{Enabled: true, Anchor: a}

	switch {
	case a.Kind == AnchorPrice:
		q.Price = a.Value
		q.Percent = PercentFromPrice(q.Price, p.Entry, p.Leverage, p.Direction, kind)
		q.Dollar = DollarFromPrice(q.Price, p.Entry, p.PositionSize, p.Direction, kind)
	case a.Unit == UnitUSD:
		q.Dollar = a.Value
		q.Price = f.round(PriceFromDollar(a.Value, p.Entry, p.PositionSize, p.Direction, kind))
		q.Percent = PercentFromPrice(q.Price, p.Entry, p.Leverage, p.Direction, kind)
	default:
		q.Percent = a.Value
		q.Price = f.round(PriceFromPercent(a.Value, p.Entry, p.Leverage, p.Direction, kind))
		q.Dollar = DollarFromPrice(q.Price, p.Entry, p.PositionSize, p.Direction, kind)
	}

	q.Valid = Validate(q.Price, p.threshold(), p.Direction, kind)
	return q
}

func (f *Form) round(v decimal.Decimal) decimal.Decimal {
	if f.rounder == nil {
		return v
	}
	return f.rounder.Round(v, f.params.SzDecimals)
}
