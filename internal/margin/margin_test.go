package margin

import (
	"testing"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func approx(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	f, _ := got.Float64()
	assert.InDelta(t, want, f, 1e-6)
}

func twoTier(t *testing.T) Schedule {
	t.Helper()
	s, err := NewSchedule([]domain.MarginTier{
		{MaxNotional: ptr("500000"), IMF: d("0.02"), MMF: d("0.01")},
		{IMF: d("0.05"), MMF: d("0.025")},
	})
	require.NoError(t, err)
	return s
}

func TestOrderValue(t *testing.T) {
	assert.True(t, OrderValue(d("2.5"), d("100")).Equal(d("250")))
}

func TestScheduleTierLookup(t *testing.T) {
	s := twoTier(t)

	tier, ok := s.Tier(d("100000"))
	require.True(t, ok)
	assert.True(t, tier.IMF.Equal(d("0.02")))

	tier, ok = s.Tier(d("500000"))
	require.True(t, ok)
	assert.True(t, tier.IMF.Equal(d("0.02")), "boundary belongs to the lower tier")

	tier, ok = s.Tier(d("600000"))
	require.True(t, ok)
	assert.True(t, tier.IMF.Equal(d("0.05")))

	_, ok = Schedule{}.Tier(d("1"))
	assert.False(t, ok)
}

func TestScheduleAboveLastBoundedTier(t *testing.T) {
	s, err := NewSchedule([]domain.MarginTier{
		{MaxNotional: ptr("1000"), IMF: d("0.1"), MMF: d("0.05")},
		{MaxNotional: ptr("2000"), IMF: d("0.2"), MMF: d("0.1")},
	})
	require.NoError(t, err)

	tier, ok := s.Tier(d("5000"))
	require.True(t, ok)
	assert.True(t, tier.IMF.Equal(d("0.2")))
}

func TestNewScheduleRejectsBadTables(t *testing.T) {
	cases := map[string][]domain.MarginTier{
		"unsorted": {
			{MaxNotional: ptr("2000"), IMF: d("0.1"), MMF: d("0.05")},
			{MaxNotional: ptr("1000"), IMF: d("0.2"), MMF: d("0.1")},
		},
		"duplicate bound": {
			{MaxNotional: ptr("1000"), IMF: d("0.1"), MMF: d("0.05")},
			{MaxNotional: ptr("1000"), IMF: d("0.2"), MMF: d("0.1")},
		},
		"unbounded not last": {
			{IMF: d("0.1"), MMF: d("0.05")},
			{MaxNotional: ptr("1000"), IMF: d("0.2"), MMF: d("0.1")},
		},
		"mmf above imf": {
			{IMF: d("0.1"), MMF: d("0.2")},
		},
		"zero imf": {
			{IMF: d("0"), MMF: d("0")},
		},
		"fraction above one": {
			{IMF: d("1.5"), MMF: d("0.5")},
		},
	}
	for name, tiers := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSchedule(tiers)
			assert.ErrorIs(t, err, domain.ErrInvalidTiers)
		})
	}
}

func TestFromLeverageTiers(t *testing.T) {
	s, err := FromLeverageTiers([]LeverageTier{
		{LowerBound: d("0"), MaxLeverage: 40},
		{LowerBound: d("150000000"), MaxLeverage: 20},
	})
	require.NoError(t, err)

	tiers := s.Tiers()
	require.Len(t, tiers, 2)
	assert.True(t, tiers[0].IMF.Equal(d("0.025")))
	assert.True(t, tiers[0].MMF.Equal(d("0.0125")))
	assert.True(t, tiers[0].MaxNotional.Equal(d("150000000")))
	assert.Nil(t, tiers[1].MaxNotional)
	assert.True(t, MaxLeverage(d("200000000"), s).Equal(d("20")))

	_, err = FromLeverageTiers([]LeverageTier{{LowerBound: d("0"), MaxLeverage: 0}})
	assert.ErrorIs(t, err, domain.ErrInvalidTiers)
}

func TestInitialAndMaintenanceMargin(t *testing.T) {
	s := twoTier(t)

	assert.True(t, InitialMargin(d("100000"), s, d("10")).Equal(d("2000")))
	assert.True(t, MaintenanceMargin(d("100000"), s).Equal(d("1000")))
	assert.True(t, MaintenanceLeverage(d("100000"), s).Equal(d("100")))
	assert.True(t, MaintenanceLeverage(d("1000000"), s).Equal(d("40")))
}

func TestMarginFallbacks(t *testing.T) {
	var empty Schedule

	assert.True(t, InitialMargin(d("1000"), empty, d("10")).Equal(d("100")))
	assert.True(t, InitialMargin(d("1000"), empty, d("0")).IsZero())
	assert.True(t, MaintenanceMargin(d("1000"), empty).Equal(d("5")))
	assert.True(t, MaintenanceLeverage(d("1000"), empty).Equal(d("200")))
	assert.True(t, MaxLeverage(d("1000"), empty).IsZero())
}

func TestLiquidationPrice(t *testing.T) {
	approx(t, 89.94974874, LiquidationPrice(d("100"), domain.OrderSideBuy, d("10"), d("1"), d("200")))
	approx(t, 109.95024876, LiquidationPrice(d("100"), domain.OrderSideSell, d("10"), d("1"), d("200")))
	approx(t, 109.95024876, LiquidationPrice(d("100"), domain.OrderSideSell, d("10"), d("-1"), d("200")))
}

func TestLiquidationPriceDegenerate(t *testing.T) {
	assert.True(t, LiquidationPrice(d("100"), domain.OrderSideBuy, d("10"), d("0"), d("200")).IsZero())
	assert.True(t, LiquidationPrice(d("100"), domain.OrderSideBuy, d("10"), d("1"), d("1")).IsZero())
	assert.True(t, LiquidationPrice(d("100"), domain.OrderSideBuy, d("10"), d("1"), d("0")).IsZero())
	assert.True(t, LiquidationPrice(d("100"), domain.OrderSideBuy, d("1000"), d("1"), d("200")).IsZero(), "clamped at zero")
}

func TestMarginAvailable(t *testing.T) {
	assert.True(t, CrossMarginAvailable(d("1000"), d("25")).Equal(d("975")))
	assert.True(t, IsolatedMarginAvailable(d("50"), d("5")).Equal(d("45")))
}

func TestEstimateLiquidation(t *testing.T) {
	isolated := EstimateLiquidation(LiquidationInput{
		Price:          d("100"),
		Side:           domain.OrderSideBuy,
		Size:           d("1"),
		Mode:           domain.MarginModeIsolated,
		IsolatedMargin: d("10"),
	})
	approx(t, 90.45226131, isolated)

	cross := EstimateLiquidation(LiquidationInput{
		Price:        d("100"),
		Side:         domain.OrderSideSell,
		Size:         d("1"),
		Mode:         domain.MarginModeCross,
		AccountValue: d("20"),
	})
	approx(t, 119.40298507, cross)
}
