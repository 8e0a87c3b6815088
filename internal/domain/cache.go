package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest mark prices.
type PriceCache interface {
	SetMark(ctx context.Context, coin string, price decimal.Decimal, ts time.Time) error
	GetMark(ctx context.Context, coin string) (decimal.Decimal, time.Time, error)
}

// BookCache stores the last reconciled view and tape per coin.
type BookCache interface {
	SetView(ctx context.Context, view BookView) error
	GetView(ctx context.Context, coin string) (BookView, error)
	SetTrades(ctx context.Context, coin string, trades []Trade) error
	GetTrades(ctx context.Context, coin string) ([]Trade, error)
}

// SignalBus provides pub/sub fan-out between the feed and API processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter decides whether key may make another request within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BookChannel is the SignalBus channel carrying BookView updates for coin.
func BookChannel(coin string) string { return "ch:book:" + coin }

// TradesChannel is the SignalBus channel carrying tape updates for coin.
func TradesChannel(coin string) string { return "ch:trades:" + coin }
