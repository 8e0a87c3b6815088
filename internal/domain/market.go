package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetInfo is static metadata for a tradable perpetual.
type AssetInfo struct {
	Coin          string `json:"coin"`
	Index         int    `json:"index"`
	SzDecimals    int    `json:"sz_decimals"`
	MaxLeverage   int    `json:"max_leverage"`
	MarginTableID int    `json:"margin_table_id"`
	OnlyIsolated  bool   `json:"only_isolated"`
}

// AssetContext is the live market state for one perpetual.
type AssetContext struct {
	Coin         string          `json:"coin"`
	MarkPrice    decimal.Decimal `json:"mark_price"`
	OraclePrice  decimal.Decimal `json:"oracle_price"`
	MidPrice     decimal.Decimal `json:"mid_price"`
	Funding      decimal.Decimal `json:"funding"`
	OpenInterest decimal.Decimal `json:"open_interest"`
	Time         time.Time       `json:"time"`
}

// AccountState is the margin summary of one account.
type AccountState struct {
	Address                    string          `json:"address"`
	AccountValue               decimal.Decimal `json:"account_value"`
	TotalMarginUsed            decimal.Decimal `json:"total_margin_used"`
	CrossMaintenanceMarginUsed decimal.Decimal `json:"cross_maintenance_margin_used"`
	Withdrawable               decimal.Decimal `json:"withdrawable"`
	Positions                  []Position      `json:"positions"`
	Time                       time.Time       `json:"time"`
}

// Position returns the open position for coin, if any.
func (a AccountState) Position(coin string) (Position, bool) {
	for _, p := range a.Positions {
		if p.Coin == coin && !p.Size.IsZero() {
			return p, true
		}
	}
	return Position{}, false
}

// OtherCrossMaintenanceMargin is the maintenance margin of every cross
// position except coin. The exchange's cross total is preferred; without it
// the per-position requirements are summed.
func (a AccountState) OtherCrossMaintenanceMargin(coin string) decimal.Decimal {
	var own, others decimal.Decimal
	for _, p := range a.Positions {
		if p.Mode == MarginModeIsolated {
			continue
		}
		if p.Coin == coin {
			own = own.Add(p.MaintenanceMargin)
		} else {
			others = others.Add(p.MaintenanceMargin)
		}
	}
	if !a.CrossMaintenanceMarginUsed.IsPositive() {
		return others
	}
	return decimal.Max(a.CrossMaintenanceMarginUsed.Sub(own), decimal.Zero)
}
