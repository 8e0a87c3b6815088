// Package feed drives the exchange WebSocket subscription for the active
// coin and precision and forwards its messages to the depth pipeline.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
)

const (
	connectTimeout    = 15 * time.Second
	connectRetryDelay = 2 * time.Second
	maxConnectDelay   = 60 * time.Second
)

// Client is the subset of hyperliquid.WSClient the feed uses.
type Client interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, spec hyperliquid.SubscriptionSpec) error
	Unsubscribe(ctx context.Context, spec hyperliquid.SubscriptionSpec) error
	OnBook(h hyperliquid.BookHandler)
	OnTrades(h hyperliquid.TradesHandler)
	OnState(h hyperliquid.StateHandler)
	Close() error
}

// Sink consumes feed messages for the active subscription.
type Sink interface {
	ApplyBook(snap domain.BookSnapshot)
	ApplyTrades(trades []domain.Trade)
	Reset(sub domain.Subscription)
}

// Status describes the feed for health and subscription endpoints.
type Status struct {
	Subscription domain.Subscription `json:"subscription"`
	Generation   string              `json:"generation"`
	Connected    bool                `json:"connected"`
	Stale        uint64              `json:"stale_messages"`
	SwitchedAt   time.Time           `json:"switched_at"`
}

// MarketFeed keeps one book and one trades subscription alive for the
// active coin. Switching resets the sink before the new subscription is
// sent, and messages for any other coin are dropped.
type MarketFeed struct {
	client Client
	sink   Sink
	logger *slog.Logger

	mu         sync.Mutex
	sub        domain.Subscription
	gen        string
	switchedAt time.Time
	pending    bool

	connected atomic.Bool
	stale     atomic.Uint64
}

// NewMarketFeed wires the feed to client and sink for the initial
// subscription.
func NewMarketFeed(client Client, sink Sink, sub domain.Subscription, logger *slog.Logger) *MarketFeed {
	f := &MarketFeed{
		client:     client,
		sink:       sink,
		logger:     logger.With(slog.String("component", "market_feed")),
		sub:        sub,
		gen:        uuid.NewString(),
		switchedAt: time.Now(),
		pending:    true,
	}
	client.OnBook(f.onBook)
	client.OnTrades(f.onTrades)
	client.OnState(f.onState)
	return f
}

// Run connects, subscribes and blocks until ctx is cancelled. The initial
// connection is retried with backoff; later drops are handled by the
// client's own reconnect loop.
func (f *MarketFeed) Run(ctx context.Context) error {
	if err := f.sub.Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	delay := connectRetryDelay
	for {
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := f.client.Connect(connCtx)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("connect failed, retrying", slog.String("error", err.Error()), slog.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxConnectDelay)
	}

	<-ctx.Done()
	if err := f.client.Close(); err != nil {
		f.logger.Debug("close", slog.String("error", err.Error()))
	}
	return nil
}

// Switch moves the feed to sub. The sink is reset first so nothing from the
// previous subscription can be merged into the new book.
func (f *MarketFeed) Switch(ctx context.Context, sub domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if sub == f.sub {
		return nil
	}
	old := f.sub
	f.sub = sub
	f.gen = uuid.NewString()
	f.switchedAt = time.Now()
	f.sink.Reset(sub)

	if err := f.client.Unsubscribe(ctx, hyperliquid.L2BookSubscription(old)); err != nil {
		f.logger.Warn("unsubscribe book", slog.String("coin", old.Coin), slog.String("error", err.Error()))
	}
	if old.Coin != sub.Coin {
		if err := f.client.Unsubscribe(ctx, hyperliquid.TradesSubscription(old.Coin)); err != nil {
			f.logger.Warn("unsubscribe trades", slog.String("coin", old.Coin), slog.String("error", err.Error()))
		}
	}

	f.pending = true
	if !f.connected.Load() {
		return nil
	}
	if err := f.subscribeLocked(ctx); err != nil {
		return err
	}

	f.logger.Info("subscription switched",
		slog.String("coin", sub.Coin),
		slog.Int("sig_figs", sub.Precision.SigFigs),
		slog.Int("mantissa", sub.Precision.Mantissa),
		slog.String("generation", f.gen),
	)
	return nil
}

// Subscription returns the active subscription.
func (f *MarketFeed) Subscription() domain.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

// Status returns a snapshot of the feed state.
func (f *MarketFeed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Subscription: f.sub,
		Generation:   f.gen,
		Connected:    f.connected.Load(),
		Stale:        f.stale.Load(),
		SwitchedAt:   f.switchedAt,
	}
}

func (f *MarketFeed) subscribeLocked(ctx context.Context) error {
	if err := f.client.Subscribe(ctx, hyperliquid.L2BookSubscription(f.sub)); err != nil {
		return fmt.Errorf("feed: subscribe book %s: %w", f.sub.Coin, err)
	}
	if err := f.client.Subscribe(ctx, hyperliquid.TradesSubscription(f.sub.Coin)); err != nil {
		return fmt.Errorf("feed: subscribe trades %s: %w", f.sub.Coin, err)
	}
	f.pending = false
	return nil
}

func (f *MarketFeed) currentCoin() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub.Coin
}

func (f *MarketFeed) onBook(snap domain.BookSnapshot) {
	if snap.Coin != f.currentCoin() {
		f.stale.Add(1)
		return
	}
	f.sink.ApplyBook(snap)
}

func (f *MarketFeed) onTrades(trades []domain.Trade) {
	coin := f.currentCoin()
	kept := trades[:0:0]
	for _, tr := range trades {
		if tr.Coin == coin {
			kept = append(kept, tr)
		}
	}
	if dropped := len(trades) - len(kept); dropped > 0 {
		f.stale.Add(uint64(dropped))
	}
	if len(kept) > 0 {
		f.sink.ApplyTrades(kept)
	}
}

// onState subscribes once the connection is up if a subscription is still
// outstanding. Subscriptions that were already sent are restored by the
// client itself.
func (f *MarketFeed) onState(connected bool) {
	f.connected.Store(connected)
	if !connected {
		f.logger.Warn("feed disconnected")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pending {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := f.subscribeLocked(ctx); err != nil {
		f.logger.Error("subscribe after connect", slog.String("error", err.Error()))
		return
	}
	f.logger.Info("subscribed", slog.String("coin", f.sub.Coin), slog.String("generation", f.gen))
}
