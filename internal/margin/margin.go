package margin

import (
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	fallbackMMF                = decimal.RequireFromString("0.005")
	defaultMaintenanceLeverage = decimal.NewFromInt(200)
)

// OrderValue is the notional of size at price.
func OrderValue(size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price)
}

// InitialMargin returns notional × imf for the matching tier. Without a
// schedule it returns notional / fallbackLeverage, or zero when the
// leverage is not positive.
func InitialMargin(notional decimal.Decimal, s Schedule, fallbackLeverage decimal.Decimal) decimal.Decimal {
	if tier, ok := s.Tier(notional); ok {
		return notional.Mul(tier.IMF)
	}
	if !fallbackLeverage.IsPositive() {
		return decimal.Zero
	}
	return notional.Div(fallbackLeverage)
}

// MaintenanceMargin returns notional × mmf for the matching tier, or
// notional × 0.005 without a schedule.
func MaintenanceMargin(notional decimal.Decimal, s Schedule) decimal.Decimal {
	if tier, ok := s.Tier(notional); ok {
		return notional.Mul(tier.MMF)
	}
	return notional.Mul(fallbackMMF)
}

// MaintenanceLeverage returns 1/mmf for the matching tier, or 200 without
// a schedule.
func MaintenanceLeverage(notional decimal.Decimal, s Schedule) decimal.Decimal {
	if tier, ok := s.Tier(notional); ok && tier.MMF.IsPositive() {
		return one.Div(tier.MMF)
	}
	return defaultMaintenanceLeverage
}

// MaxLeverage returns 1/imf for the matching tier, or zero without a
// schedule.
func MaxLeverage(notional decimal.Decimal, s Schedule) decimal.Decimal {
	if tier, ok := s.Tier(notional); ok && tier.IMF.IsPositive() {
		return one.Div(tier.IMF)
	}
	return decimal.Zero
}

// LiquidationPrice returns
//
//	price − side × (marginAvailable / positionSize) × 1 / (1 − l × side)
//
// with l = 1/maintenanceLeverage and side +1 for longs, −1 for shorts. The
// position size is taken as an absolute value. The result is clamped to be
// non-negative, and degenerate inputs (zero size, non-positive maintenance
// leverage, zero denominator) return zero.
func LiquidationPrice(price decimal.Decimal, side domain.OrderSide, marginAvailable, positionSize, maintenanceLeverage decimal.Decimal) decimal.Decimal {
	size := positionSize.Abs()
	if size.IsZero() || !maintenanceLeverage.IsPositive() {
		return decimal.Zero
	}

	s := side.Sign()
	l := one.Div(maintenanceLeverage)
	denom := one.Sub(l.Mul(s))
	if denom.IsZero() {
		return decimal.Zero
	}

	liq := price.Sub(s.Mul(marginAvailable.Div(size)).Div(denom))
	if liq.IsNegative() {
		return decimal.Zero
	}
	return liq
}

// CrossMarginAvailable is the account value left after the maintenance
// requirement of every cross position.
func CrossMarginAvailable(accountValue, totalMaintenanceMargin decimal.Decimal) decimal.Decimal {
	return accountValue.Sub(totalMaintenanceMargin)
}

// IsolatedMarginAvailable is the isolated collateral left after this
// position's maintenance requirement.
func IsolatedMarginAvailable(isolatedMargin, maintenanceMargin decimal.Decimal) decimal.Decimal {
	return isolatedMargin.Sub(maintenanceMargin)
}

// LiquidationInput describes a position for EstimateLiquidation.
type LiquidationInput struct {
	Price    decimal.Decimal
	Side     domain.OrderSide
	Size     decimal.Decimal
	Mode     domain.MarginMode
	Schedule Schedule

	// Cross: account value and maintenance margin of all other positions.
	AccountValue           decimal.Decimal
	OtherMaintenanceMargin decimal.Decimal

	// Isolated: collateral assigned to this position.
	IsolatedMargin decimal.Decimal
}

// EstimateLiquidation resolves the margin available for the position's
// mode and returns its liquidation price.
func EstimateLiquidation(in LiquidationInput) decimal.Decimal {
	size := in.Size.Abs()
	notional := OrderValue(size, in.Price)
	mm := MaintenanceMargin(notional, in.Schedule)

	var available decimal.Decimal
	if in.Mode == domain.MarginModeIsolated {
		available = IsolatedMarginAvailable(in.IsolatedMargin, mm)
	} else {
		available = CrossMarginAvailable(in.AccountValue, in.OtherMaintenanceMargin.Add(mm))
	}

	return LiquidationPrice(in.Price, in.Side, available, size, MaintenanceLeverage(notional, in.Schedule))
}
