package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
	"github.com/alanyoungcy/perpdepth/internal/symbol"
)

// InfoSource is the subset of hyperliquid.InfoClient the market data
// service uses.
type InfoSource interface {
	MetaAndAssetCtxs(ctx context.Context) (hyperliquid.Universe, map[string]domain.AssetContext, error)
	ClearinghouseState(ctx context.Context, address string) (domain.AccountState, error)
}

// MarketDataService keeps asset metadata, mark prices and margin schedules
// current by polling the info endpoint.
type MarketDataService struct {
	info    InfoSource
	symbols *symbol.Converter
	prices  domain.PriceCache
	logger  *slog.Logger

	mu          sync.RWMutex
	ctxs        map[string]domain.AssetContext
	refreshedAt time.Time
}

// NewMarketDataService creates a MarketDataService. prices may be nil.
func NewMarketDataService(info InfoSource, symbols *symbol.Converter, prices domain.PriceCache, logger *slog.Logger) *MarketDataService {
	return &MarketDataService{
		info:    info,
		symbols: symbols,
		prices:  prices,
		logger:  logger.With(slog.String("component", "market_data_service")),
		ctxs:    make(map[string]domain.AssetContext),
	}
}

// Refresh reloads the universe and asset contexts, then caches the mark
// price of each coin in watch. Margin tables that fail validation are
// logged as errors; their coins have no schedule until a valid table
// arrives.
func (s *MarketDataService) Refresh(ctx context.Context, watch ...string) error {
	u, ctxs, err := s.info.MetaAndAssetCtxs(ctx)
	if err != nil {
		return fmt.Errorf("market_data_service: refresh: %w", err)
	}
	if err := s.symbols.Load(u); err != nil {
		s.logger.ErrorContext(ctx, "margin tiers rejected", slog.String("error", err.Error()))
	}

	now := time.Now()
	s.mu.Lock()
	s.ctxs = ctxs
	s.refreshedAt = now
	s.mu.Unlock()

	if s.prices == nil {
		return nil
	}
	for _, coin := range watch {
		ac, ok := ctxs[coin]
		if !ok {
			continue
		}
		ts := ac.Time
		if ts.IsZero() {
			ts = now
		}
		if err := s.prices.SetMark(ctx, coin, ac.MarkPrice, ts); err != nil {
			s.logger.WarnContext(ctx, "cache mark failed", slog.String("coin", coin), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Run refreshes every interval until ctx is cancelled. active names the
// coin whose mark is cached on each pass.
func (s *MarketDataService) Run(ctx context.Context, interval time.Duration, active func() string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Refresh(ctx, active()); err != nil && ctx.Err() == nil {
				s.logger.Warn("refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RefreshedAt returns when the asset contexts were last loaded.
func (s *MarketDataService) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// AssetContext returns the live context of coin.
func (s *MarketDataService) AssetContext(coin string) (domain.AssetContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ac, ok := s.ctxs[coin]
	if !ok {
		return domain.AssetContext{}, fmt.Errorf("market_data_service: %w: %s", domain.ErrUnknownCoin, coin)
	}
	return ac, nil
}

// Mark returns the mark price of coin, falling back to the price cache when
// the coin is not in the last refresh.
func (s *MarketDataService) Mark(ctx context.Context, coin string) (decimal.Decimal, time.Time, error) {
	if ac, err := s.AssetContext(coin); err == nil && ac.MarkPrice.IsPositive() {
		return ac.MarkPrice, ac.Time, nil
	}
	if s.prices == nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("market_data_service: mark %s: %w", coin, domain.ErrNotFound)
	}
	px, ts, err := s.prices.GetMark(ctx, coin)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("market_data_service: mark %s: %w", coin, err)
	}
	return px, ts, nil
}

// Assets returns the metadata of every known coin, ordered by coin.
func (s *MarketDataService) Assets() []domain.AssetInfo {
	coins := s.symbols.Coins()
	out := make([]domain.AssetInfo, 0, len(coins))
	for _, coin := range coins {
		if a, err := s.symbols.Asset(coin); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// Asset returns static metadata of coin.
func (s *MarketDataService) Asset(coin string) (domain.AssetInfo, error) {
	return s.symbols.Asset(coin)
}

// Schedule returns the validated margin schedule of coin.
func (s *MarketDataService) Schedule(coin string) (margin.Schedule, error) {
	return s.symbols.Schedule(coin)
}

// Account fetches the margin summary of address and fills in each
// position's maintenance margin from its coin's schedule.
func (s *MarketDataService) Account(ctx context.Context, address string) (domain.AccountState, error) {
	st, err := s.info.ClearinghouseState(ctx, address)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("market_data_service: account: %w", err)
	}
	for i := range st.Positions {
		p := &st.Positions[i]
		sched, err := s.symbols.Schedule(p.Coin)
		if err != nil {
			s.logger.WarnContext(ctx, "position without schedule",
				slog.String("coin", p.Coin),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.MaintenanceMargin = margin.MaintenanceMargin(p.PositionValue.Abs(), sched)
	}
	return st, nil
}
