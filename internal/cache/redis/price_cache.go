package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each coin's mark is stored as a hash at key "mark:{coin}" with fields
// "px" (decimal string) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	c *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) markKey(coin string) string {
	return pc.c.Key("mark:" + coin)
}

// SetMark stores the latest mark price and timestamp for a coin.
func (pc *PriceCache) SetMark(ctx context.Context, coin string, price decimal.Decimal, ts time.Time) error {
	fields := map[string]any{
		"px": price.String(),
		"ts": strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.markKey(coin), fields).Err(); err != nil {
		return fmt.Errorf("redis: set mark %s: %w", coin, err)
	}
	return nil
}

// GetMark retrieves the latest mark price and timestamp for a coin.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetMark(ctx context.Context, coin string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.markKey(coin)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get mark %s: %w", coin, err)
	}
	return decodeMark(coin, vals)
}

func decodeMark(coin string, vals map[string]string) (decimal.Decimal, time.Time, error) {
	pxStr, ok := vals["px"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	px, err := decimal.NewFromString(pxStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse mark %s: %w", coin, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", coin, err)
	}

	return px, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
