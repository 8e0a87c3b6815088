package symbol

import (
	"testing"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func universe() hyperliquid.Universe {
	return hyperliquid.Universe{
		Assets: []domain.AssetInfo{
			{Coin: "BTC", Index: 0, SzDecimals: 5, MaxLeverage: 40, MarginTableID: 56},
			{Coin: "ETH", Index: 1, SzDecimals: 4, MaxLeverage: 25, MarginTableID: 25},
			{Coin: "DOGE", Index: 2, SzDecimals: 0, MaxLeverage: 0, MarginTableID: 0},
		},
		MarginTables: map[int][]margin.LeverageTier{
			56: {
				{LowerBound: decimal.Zero, MaxLeverage: 40},
				{LowerBound: decimal.NewFromInt(150_000_000), MaxLeverage: 20},
			},
		},
	}
}

func TestConverterLookups(t *testing.T) {
	c, err := NewConverter(universe())
	require.NoError(t, err)

	a, err := c.Asset("ETH")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Index)
	assert.Equal(t, []string{"BTC", "DOGE", "ETH"}, c.Coins())

	_, err = c.Asset("XYZ")
	assert.ErrorIs(t, err, domain.ErrUnknownCoin)
}

func TestConverterSchedule(t *testing.T) {
	c, err := NewConverter(universe())
	require.NoError(t, err)

	btc, err := c.Schedule("BTC")
	require.NoError(t, err)
	assert.Len(t, btc.Tiers(), 2)

	eth, err := c.Schedule("ETH")
	require.NoError(t, err)
	require.Len(t, eth.Tiers(), 1)
	assert.True(t, eth.Tiers()[0].IMF.Equal(decimal.RequireFromString("0.04")))

	doge, err := c.Schedule("DOGE")
	require.NoError(t, err)
	assert.True(t, doge.Empty())

	_, err = c.Schedule("XYZ")
	assert.ErrorIs(t, err, domain.ErrUnknownCoin)
}

func TestConverterLoadReplacesUniverse(t *testing.T) {
	c, err := NewConverter(hyperliquid.Universe{})
	require.NoError(t, err)
	assert.Empty(t, c.Coins())

	require.NoError(t, c.Load(universe()))
	assert.Len(t, c.Coins(), 3)

	require.NoError(t, c.Load(hyperliquid.Universe{Assets: []domain.AssetInfo{{Coin: "SOL", MaxLeverage: 20}}}))
	assert.Equal(t, []string{"SOL"}, c.Coins())
	_, err = c.Asset("BTC")
	assert.ErrorIs(t, err, domain.ErrUnknownCoin)
}

func TestConverterRejectsUnsortedTiersAtLoad(t *testing.T) {
	u := universe()
	u.MarginTables[56] = []margin.LeverageTier{
		{LowerBound: decimal.Zero, MaxLeverage: 40},
		{LowerBound: decimal.NewFromInt(500_000), MaxLeverage: 20},
		{LowerBound: decimal.NewFromInt(100_000), MaxLeverage: 10},
	}

	c, err := NewConverter(u)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTiers)
	assert.Contains(t, err.Error(), "BTC")

	_, err = c.Schedule("BTC")
	assert.ErrorIs(t, err, domain.ErrInvalidTiers)

	a, err := c.Asset("BTC")
	require.NoError(t, err, "a rejected table keeps the asset resolvable")
	assert.Equal(t, 40, a.MaxLeverage)

	eth, err := c.Schedule("ETH")
	require.NoError(t, err)
	assert.Len(t, eth.Tiers(), 1)

	require.NoError(t, c.Load(universe()))
	_, err = c.Schedule("BTC")
	assert.NoError(t, err, "a corrected table clears the rejection")
}
