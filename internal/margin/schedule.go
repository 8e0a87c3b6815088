// Package margin computes tiered margin requirements and liquidation prices
// for perpetual positions.
package margin

import (
	"fmt"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// Schedule is a validated, ascending margin tier table. The zero value is
// an empty schedule and selects the fallback formulas.
type Schedule struct {
	tiers []domain.MarginTier
}

// NewSchedule validates tiers and returns a schedule. Tiers must ascend
// strictly by MaxNotional, only the last may be unbounded, fractions must
// lie in (0, 1] and MMF must not exceed IMF.
func NewSchedule(tiers []domain.MarginTier) (Schedule, error) {
	var prev *decimal.Decimal
	for i, t := range tiers {
		if !t.IMF.IsPositive() || t.IMF.GreaterThan(one) {
			return Schedule{}, fmt.Errorf("%w: tier %d imf %s not in (0, 1]", domain.ErrInvalidTiers, i, t.IMF)
		}
		if !t.MMF.IsPositive() || t.MMF.GreaterThan(one) {
			return Schedule{}, fmt.Errorf("%w: tier %d mmf %s not in (0, 1]", domain.ErrInvalidTiers, i, t.MMF)
		}
		if t.MMF.GreaterThan(t.IMF) {
			return Schedule{}, fmt.Errorf("%w: tier %d mmf %s exceeds imf %s", domain.ErrInvalidTiers, i, t.MMF, t.IMF)
		}
		if t.MaxNotional == nil {
			if i != len(tiers)-1 {
				return Schedule{}, fmt.Errorf("%w: unbounded tier %d is not last", domain.ErrInvalidTiers, i)
			}
			continue
		}
		if !t.MaxNotional.IsPositive() {
			return Schedule{}, fmt.Errorf("%w: tier %d max notional %s not positive", domain.ErrInvalidTiers, i, t.MaxNotional)
		}
		if prev != nil && !t.MaxNotional.GreaterThan(*prev) {
			return Schedule{}, fmt.Errorf("%w: tier %d max notional %s does not ascend", domain.ErrInvalidTiers, i, t.MaxNotional)
		}
		prev = t.MaxNotional
	}

	out := make([]domain.MarginTier, len(tiers))
	copy(out, tiers)
	return Schedule{tiers: out}, nil
}

// Empty reports whether the schedule has no tiers.
func (s Schedule) Empty() bool { return len(s.tiers) == 0 }

// Tiers returns a copy of the tiers.
func (s Schedule) Tiers() []domain.MarginTier {
	out := make([]domain.MarginTier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Tier returns the first tier whose MaxNotional is at least notional. A
// notional above every bounded tier resolves to the last tier.
func (s Schedule) Tier(notional decimal.Decimal) (domain.MarginTier, bool) {
	if len(s.tiers) == 0 {
		return domain.MarginTier{}, false
	}
	for _, t := range s.tiers {
		if t.MaxNotional == nil || t.MaxNotional.GreaterThanOrEqual(notional) {
			return t, true
		}
	}
	return s.tiers[len(s.tiers)-1], true
}

// LeverageTier is one row of the exchange's margin table: from LowerBound
// notional upward the position may use at most MaxLeverage.
type LeverageTier struct {
	LowerBound  decimal.Decimal
	MaxLeverage int
}

// FromLeverageTiers converts an exchange margin table into a schedule. Each
// row applies until the next row's lower bound; the last row is unbounded.
// IMF is 1/maxLeverage and MMF half of it.
func FromLeverageTiers(rows []LeverageTier) (Schedule, error) {
	tiers := make([]domain.MarginTier, 0, len(rows))
	for i, row := range rows {
		if row.MaxLeverage <= 0 {
			return Schedule{}, fmt.Errorf("%w: row %d max leverage %d", domain.ErrInvalidTiers, i, row.MaxLeverage)
		}
		imf := one.Div(decimal.NewFromInt(int64(row.MaxLeverage)))
		tier := domain.MarginTier{IMF: imf, MMF: imf.Div(two)}
		if i+1 < len(rows) {
			upper := rows[i+1].LowerBound
			tier.MaxNotional = &upper
		}
		tiers = append(tiers, tier)
	}
	return NewSchedule(tiers)
}
