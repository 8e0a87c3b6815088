package domain

import "github.com/shopspring/decimal"

// MarginMode selects which collateral pool backs a position.
type MarginMode string

const (
	MarginModeCross    MarginMode = "cross"
	MarginModeIsolated MarginMode = "isolated"
)

// MarginTier is one bracket of a tiered margin schedule. MaxNotional nil
// means the bracket is unbounded.
type MarginTier struct {
	MaxNotional *decimal.Decimal `json:"max_notional,omitempty"`
	IMF         decimal.Decimal  `json:"imf"`
	MMF         decimal.Decimal  `json:"mmf"`
}

// Position is an open perpetual position. Size is signed: positive long,
// negative short.
type Position struct {
	Coin              string          `json:"coin"`
	Size              decimal.Decimal `json:"size"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	Mode              MarginMode      `json:"mode"`
	Leverage          int             `json:"leverage"`
	IsolatedMargin    decimal.Decimal `json:"isolated_margin"`
	PositionValue     decimal.Decimal `json:"position_value"`
	LiquidationPrice  decimal.Decimal `json:"liquidation_price"`
	UnrealizedPnl     decimal.Decimal `json:"unrealized_pnl"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
}

// Side returns the direction of the position.
func (p Position) Side() OrderSide {
	if p.Size.IsNegative() {
		return OrderSideSell
	}
	return OrderSideBuy
}
