package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BookCache implements domain.BookCache.
//
// Key schema:
//
//	book:{coin}:view - JSON of the last reconciled view
//	book:{coin}:bbo  - hash with "bid", "ask", "spread", "ts"
//	trades:{coin}    - list of JSON trades, newest first
type BookCache struct {
	c *Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{c: c}
}

func (bc *BookCache) viewKey(coin string) string   { return bc.c.Key("book:" + coin + ":view") }
func (bc *BookCache) bboKey(coin string) string    { return bc.c.Key("book:" + coin + ":bbo") }
func (bc *BookCache) tradesKey(coin string) string { return bc.c.Key("trades:" + coin) }

// SetView stores the view and its best bid/offer atomically.
func (bc *BookCache) SetView(ctx context.Context, view domain.BookView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: encode view %s: %w", view.Coin, err)
	}

	pipe := bc.c.rdb.TxPipeline()
	pipe.Set(ctx, bc.viewKey(view.Coin), data, bc.c.ttl)
	pipe.HSet(ctx, bc.bboKey(view.Coin), bboFields(view))
	if bc.c.ttl > 0 {
		pipe.Expire(ctx, bc.bboKey(view.Coin), bc.c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set view %s: %w", view.Coin, err)
	}
	return nil
}

// GetView returns the last stored view. It returns domain.ErrNotFound when
// nothing is cached for coin.
func (bc *BookCache) GetView(ctx context.Context, coin string) (domain.BookView, error) {
	data, err := bc.c.rdb.Get(ctx, bc.viewKey(coin)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.BookView{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BookView{}, fmt.Errorf("redis: get view %s: %w", coin, err)
	}

	var view domain.BookView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.BookView{}, fmt.Errorf("redis: decode view %s: %w", coin, err)
	}
	return view, nil
}

// SetTrades replaces the cached tape of coin.
func (bc *BookCache) SetTrades(ctx context.Context, coin string, trades []domain.Trade) error {
	key := bc.tradesKey(coin)
	values := make([]any, 0, len(trades))
	for _, tr := range trades {
		data, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("redis: encode trade %s: %w", coin, err)
		}
		values = append(values, data)
	}

	pipe := bc.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
		if bc.c.ttl > 0 {
			pipe.Expire(ctx, key, bc.c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set trades %s: %w", coin, err)
	}
	return nil
}

// GetTrades returns the cached tape of coin, newest first. Entries that do
// not decode are skipped.
func (bc *BookCache) GetTrades(ctx context.Context, coin string) ([]domain.Trade, error) {
	raw, err := bc.c.rdb.LRange(ctx, bc.tradesKey(coin), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get trades %s: %w", coin, err)
	}
	if len(raw) == 0 {
		return nil, domain.ErrNotFound
	}

	out := make([]domain.Trade, 0, len(raw))
	for _, s := range raw {
		var tr domain.Trade
		if err := json.Unmarshal([]byte(s), &tr); err != nil {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

// bboFields flattens the top of book into hash fields.
func bboFields(view domain.BookView) map[string]any {
	fields := map[string]any{
		"spread": view.Spread.Value.String(),
		"ts":     view.Time.UnixMilli(),
	}
	if len(view.Bids) > 0 {
		fields["bid"] = view.Bids[0].Price.String()
	} else {
		fields["bid"] = ""
	}
	if len(view.Asks) > 0 {
		fields["ask"] = view.Asks[0].Price.String()
	} else {
		fields["ask"] = ""
	}
	return fields
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)

