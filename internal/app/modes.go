package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpdepth/internal/capture"
	"github.com/alanyoungcy/perpdepth/internal/config"
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/fee"
	"github.com/alanyoungcy/perpdepth/internal/feed"
	"github.com/alanyoungcy/perpdepth/internal/notify"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
	"github.com/alanyoungcy/perpdepth/internal/server"
	"github.com/alanyoungcy/perpdepth/internal/server/handler"
	"github.com/alanyoungcy/perpdepth/internal/server/ws"
	"github.com/alanyoungcy/perpdepth/internal/service"
	"github.com/alanyoungcy/perpdepth/internal/symbol"
)

// pruneInterval is how often expired capture segments are deleted.
const pruneInterval = time.Hour

// StreamMode connects to the live feed, keeps the book of the configured
// subscription reconciled, publishes it through Redis and serves the API.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode")

	if deps.Info == nil {
		return fmt.Errorf("app: stream mode needs exchange.info_url")
	}
	if a.cfg.Capture.Enabled && deps.BlobWriter == nil {
		return fmt.Errorf("app: capture enabled without blob storage")
	}

	g, ctx := errgroup.WithContext(ctx)

	sub := subscriptionFrom(a.cfg.Market)
	depth := service.NewDepthService(sub, depthConfigFrom(a.cfg.Market), deps.BookCache, deps.SignalBus, a.logger)
	g.Go(func() error { return depth.Run(ctx) })

	// Market metadata must be loaded before quotes can resolve margin tables;
	// a failed first load is retried by the refresh loop.
	symbols, err := symbol.NewConverter(hyperliquid.Universe{})
	if err != nil {
		return fmt.Errorf("stream: symbols: %w", err)
	}
	market := service.NewMarketDataService(deps.Info, symbols, deps.PriceCache, a.logger)
	if err := market.Refresh(ctx, sub.Coin); err != nil {
		a.logger.WarnContext(ctx, "initial market refresh failed", slog.String("error", err.Error()))
	}

	wsClient := hyperliquid.NewWSClient(a.cfg.Exchange.WSURL, a.logger)
	marketFeed := feed.NewMarketFeed(wsClient, depth, sub, a.logger)

	if notifier := a.buildNotifier(); notifier.Enabled() {
		wsClient.OnState(notifier.FeedStateAlerter(func() string {
			return marketFeed.Subscription().Coin
		}))
		g.Go(func() error { return notifier.Run(ctx) })
	}

	g.Go(func() error { return marketFeed.Run(ctx) })
	g.Go(func() error {
		return market.Run(ctx, a.cfg.Exchange.RefreshInterval.Duration, func() string {
			return marketFeed.Subscription().Coin
		})
	})

	// Raw frame capture.
	if a.cfg.Capture.Enabled {
		recorder := capture.NewRecorder(deps.BlobWriter, capture.RecorderConfig{
			Prefix:        a.cfg.Capture.Prefix,
			MaxFrames:     a.cfg.Capture.MaxFrames,
			FlushInterval: a.cfg.Capture.FlushInterval.Duration,
		}, a.logger)
		wsClient.OnRaw(recorder.Record)
		g.Go(func() error { return recorder.Run(ctx) })

		if a.cfg.Capture.RetentionDays > 0 {
			retention := time.Duration(a.cfg.Capture.RetentionDays) * 24 * time.Hour
			g.Go(func() error {
				return a.pruneLoop(ctx, deps, retention)
			})
		}
	}

	quotes := service.NewQuoteService(depth, market, feeCalculatorFrom(a.cfg.Fees))
	quotes.SetDefaultSlippage(decimal.NewFromFloat(a.cfg.Margin.MaxSlippagePercent))
	tpsl := service.NewTpslService(market)

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			Status:         func() any { return marketFeed.Status() },
			StartedAt:      time.Now().UTC(),
		})
		g.Go(func() error { return hub.Run(ctx) })

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
			Limiter:     deps.RateLimiter,
		}, server.Handlers{
			Health:       handler.NewHealthHandler(marketFeed, depth, market, a.logger),
			Book:         handler.NewBookHandler(depth, deps.BookCache, a.logger),
			Subscription: handler.NewSubscriptionHandler(marketFeed, market, a.logger),
			Quote:        handler.NewQuoteHandler(quotes, tpsl, a.logger),
			Asset:        handler.NewAssetHandler(market, a.logger),
		}, hub, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

// ReplayMode plays captured frames through the same decoder and book as the
// live feed, then logs the final book and counters.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	if deps.BlobReader == nil {
		return fmt.Errorf("app: replay mode needs blob storage")
	}

	sub := subscriptionFrom(a.cfg.Market)
	depth := service.NewDepthService(sub, depthConfigFrom(a.cfg.Market), nil, nil, a.logger)

	// The client is never connected; it only decodes frames handed to it.
	decoder := hyperliquid.NewWSClient("", a.logger)
	decoder.OnBook(depth.ApplyBook)
	decoder.OnTrades(depth.ApplyTrades)
	defer decoder.Close()

	prefix := a.cfg.Capture.ReplayPrefix
	if prefix == "" {
		prefix = a.cfg.Capture.Prefix
	}

	player := capture.NewPlayer(deps.BlobReader, a.logger)
	player.Speed = a.cfg.Capture.ReplaySpeed

	start := time.Now()
	frames, err := player.PlayAll(ctx, prefix, decoder.HandleFrame)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: replay %q: %w", prefix, err)
	}

	view := depth.View()
	stats := depth.Stats()
	attrs := []any{
		slog.String("prefix", prefix),
		slog.Int("frames", frames),
		slog.Duration("elapsed", time.Since(start)),
		slog.Uint64("snapshots", stats.Snapshots),
		slog.Uint64("ignored", stats.Ignored),
		slog.Uint64("trades", stats.Trades),
		slog.Int("bid_levels", len(view.Bids)),
		slog.Int("ask_levels", len(view.Asks)),
	}
	if len(view.Bids) > 0 && len(view.Asks) > 0 {
		attrs = append(attrs,
			slog.String("best_bid", view.Bids[0].Price.String()),
			slog.String("best_ask", view.Asks[0].Price.String()),
			slog.String("spread", view.Spread.Value.String()),
		)
	}
	a.logger.InfoContext(ctx, "replay finished", attrs...)
	return nil
}

// buildNotifier creates the alert notifier from whichever channels are
// configured.
func (a *App) buildNotifier() *notify.Notifier {
	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			a.cfg.Notify.TelegramToken,
			a.cfg.Notify.TelegramChatID,
		))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, a.cfg.Notify.Events, a.cfg.Notify.Cooldown.Duration, a.logger)
}

// pruneLoop deletes capture segments older than retention once per
// pruneInterval.
func (a *App) pruneLoop(ctx context.Context, deps *Dependencies, retention time.Duration) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := capture.Prune(ctx, deps.BlobReader, deps.BlobDeleter, a.cfg.Capture.Prefix, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			a.logger.WarnContext(ctx, "capture prune failed", slog.String("error", err.Error()))
		case n > 0:
			a.logger.InfoContext(ctx, "capture segments pruned", slog.Int("deleted", n))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func subscriptionFrom(m config.MarketConfig) domain.Subscription {
	return domain.Subscription{
		Coin: m.Coin,
		Precision: domain.Precision{
			SigFigs:  m.SigFigs,
			Mantissa: m.Mantissa,
		},
	}
}

func depthConfigFrom(m config.MarketConfig) service.DepthConfig {
	return service.DepthConfig{
		Depth:        m.Depth,
		HighlightTTL: m.HighlightTTL.Duration,
		TapeSize:     m.TapeSize,
	}
}

// feeCalculatorFrom builds the fee schedule, keeping the default for any
// rate left at zero.
func feeCalculatorFrom(f config.FeesConfig) fee.Calculator {
	calc := fee.NewCalculator()
	if f.MakerRate > 0 {
		calc.MakerRate = decimal.NewFromFloat(f.MakerRate)
	}
	if f.TakerRate > 0 {
		calc.TakerRate = decimal.NewFromFloat(f.TakerRate)
	}
	return calc
}
