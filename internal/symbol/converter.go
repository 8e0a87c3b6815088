// Package symbol maps coins to exchange asset metadata.
package symbol

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
	"github.com/shopspring/decimal"
)

// Converter resolves coins to asset indexes, size decimals and margin
// schedules. It is constructed by the caller and passed to whoever needs
// it; it is safe for concurrent use.
type Converter struct {
	mu        sync.RWMutex
	byCoin    map[string]domain.AssetInfo
	schedules map[string]margin.Schedule
	rejected  map[string]error
}

// NewConverter returns a converter loaded with u. The error reports coins
// whose margin table was rejected; the rest of u is loaded regardless.
func NewConverter(u hyperliquid.Universe) (*Converter, error) {
	c := &Converter{}
	err := c.Load(u)
	return c, err
}

// Load replaces the converter's contents with u and validates the margin
// schedule of every asset. A coin with invalid tiers stays resolvable but
// has no schedule; the returned error joins one ErrInvalidTiers per such
// coin.
func (c *Converter) Load(u hyperliquid.Universe) error {
	byCoin := make(map[string]domain.AssetInfo, len(u.Assets))
	schedules := make(map[string]margin.Schedule, len(u.Assets))
	rejected := make(map[string]error)
	var errs []error
	for _, a := range u.Assets {
		byCoin[a.Coin] = a
		s, err := buildSchedule(a, u.MarginTables[a.MarginTableID])
		if err != nil {
			err = fmt.Errorf("symbol: schedule %s: %w", a.Coin, err)
			rejected[a.Coin] = err
			errs = append(errs, err)
			continue
		}
		schedules[a.Coin] = s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCoin = byCoin
	c.schedules = schedules
	c.rejected = rejected
	return errors.Join(errs...)
}

// buildSchedule converts an asset's margin table. An asset whose table is
// missing gets a single tier at its max leverage.
func buildSchedule(a domain.AssetInfo, rows []margin.LeverageTier) (margin.Schedule, error) {
	if len(rows) == 0 {
		if a.MaxLeverage <= 0 {
			return margin.Schedule{}, nil
		}
		rows = []margin.LeverageTier{{LowerBound: decimal.Zero, MaxLeverage: a.MaxLeverage}}
	}
	return margin.FromLeverageTiers(rows)
}

// Asset returns the metadata of coin.
func (c *Converter) Asset(coin string) (domain.AssetInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byCoin[coin]
	if !ok {
		return domain.AssetInfo{}, fmt.Errorf("symbol: %w: %s", domain.ErrUnknownCoin, coin)
	}
	return a, nil
}

// Coins returns every known coin in lexical order.
func (c *Converter) Coins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.byCoin))
	for coin := range c.byCoin {
		out = append(out, coin)
	}
	sort.Strings(out)
	return out
}

// Schedule returns the validated margin schedule of coin. A coin whose
// table was rejected at load returns that error.
func (c *Converter) Schedule(coin string) (margin.Schedule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.byCoin[coin]; !ok {
		return margin.Schedule{}, fmt.Errorf("symbol: %w: %s", domain.ErrUnknownCoin, coin)
	}
	if err, ok := c.rejected[coin]; ok {
		return margin.Schedule{}, err
	}
	return c.schedules[coin], nil
}
