package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/perpdepth/internal/book"
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/fee"
	"github.com/alanyoungcy/perpdepth/internal/fill"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/pricefmt"
)

// DefaultMaxSlippagePercent bounds the order price when a request leaves
// slippage unset.
var DefaultMaxSlippagePercent = decimal.NewFromInt(8)

// BookSource exposes the reconciled ladders of the active subscription.
type BookSource interface {
	Ladders() (bids, asks book.Ladder)
	Subscription() domain.Subscription
}

// MarketSource exposes reference prices, metadata and account state.
type MarketSource interface {
	Mark(ctx context.Context, coin string) (decimal.Decimal, time.Time, error)
	Asset(coin string) (domain.AssetInfo, error)
	Schedule(coin string) (margin.Schedule, error)
	Account(ctx context.Context, address string) (domain.AccountState, error)
}

// QuoteRequest describes a hypothetical market order.
type QuoteRequest struct {
	Coin               string            `json:"coin"`
	Side               domain.OrderSide  `json:"side"`
	Size               decimal.Decimal   `json:"size"`
	Leverage           int               `json:"leverage"`
	Mode               domain.MarginMode `json:"mode"`
	MaxSlippagePercent *decimal.Decimal  `json:"max_slippage_percent,omitempty"`
	IsMaker            bool              `json:"is_maker"`
	BuilderBps         *decimal.Decimal  `json:"builder_bps,omitempty"`
	// Address, when set, bases the cross liquidation estimate on the
	// account's real value and other positions.
	Address string `json:"address,omitempty"`
}

// Quote is the full pre-trade estimate for a QuoteRequest.
type Quote struct {
	ID                string            `json:"id"`
	Coin              string            `json:"coin"`
	Side              domain.OrderSide  `json:"side"`
	Size              decimal.Decimal   `json:"size"`
	Mode              domain.MarginMode `json:"mode"`
	Leverage          int               `json:"leverage"`
	ReferencePrice    decimal.Decimal   `json:"reference_price"`
	Fill              fill.Result       `json:"fill"`
	OrderPrice        string            `json:"order_price"`
	OrderValue        decimal.Decimal   `json:"order_value"`
	Fee               decimal.Decimal   `json:"fee"`
	InitialMargin     decimal.Decimal   `json:"initial_margin"`
	PostedMargin      decimal.Decimal   `json:"posted_margin"`
	MaintenanceMargin decimal.Decimal   `json:"maintenance_margin"`
	MaxLeverage       decimal.Decimal   `json:"max_leverage"`
	LiquidationPrice  decimal.Decimal   `json:"liquidation_price"`
	Time              time.Time         `json:"time"`
}

// QuoteService combines the book, margin schedule and fee schedule into one
// pre-trade estimate.
type QuoteService struct {
	book   BookSource
	market MarketSource
	fees   fee.Calculator
	prices pricefmt.Formatter
	now    func() time.Time

	slippage decimal.Decimal
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(bookSrc BookSource, market MarketSource, fees fee.Calculator) *QuoteService {
	return &QuoteService{
		book:   bookSrc,
		market: market,
		fees:   fees,
		prices: pricefmt.Perp(),
		now:    time.Now,

		slippage: DefaultMaxSlippagePercent,
	}
}

// SetDefaultSlippage replaces the slippage bound used when a request leaves
// it unset. Non-positive values are ignored.
func (s *QuoteService) SetDefaultSlippage(percent decimal.Decimal) {
	if percent.IsPositive() {
		s.slippage = percent
	}
}

// Quote estimates fill, price bound, fee, margin and liquidation for req.
// The coin must be the one the book is subscribed to.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := s.validate(req); err != nil {
		return Quote{}, err
	}

	asset, err := s.market.Asset(req.Coin)
	if err != nil {
		return Quote{}, fmt.Errorf("quote_service: %w", err)
	}
	schedule, err := s.market.Schedule(req.Coin)
	if err != nil {
		return Quote{}, fmt.Errorf("quote_service: %w", err)
	}

	bids, asks := s.book.Ladders()
	ref, err := s.referencePrice(ctx, req.Coin, bids, asks)
	if err != nil {
		return Quote{}, err
	}

	slippage := s.slippage
	if req.MaxSlippagePercent != nil {
		slippage = *req.MaxSlippagePercent
	}
	result := fill.SimulateSide(bids.Levels, asks.Levels, req.Side, req.Size, ref)
	levels := asks.Levels
	if req.Side == domain.OrderSideSell {
		levels = bids.Levels
	}
	orderPrice := fill.OrderPrice(levels, req.Side, req.Size, ref, slippage)

	entry := ref
	if result.Possible {
		entry = result.VWAP
	}
	notional := margin.OrderValue(req.Size, entry)

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = asset.MaxLeverage
	}
	maxLev := margin.MaxLeverage(notional, schedule)
	if maxLev.IsPositive() && decimal.NewFromInt(int64(leverage)).GreaterThan(maxLev) {
		leverage = int(maxLev.IntPart())
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.MarginModeCross
	}
	if asset.OnlyIsolated {
		mode = domain.MarginModeIsolated
	}

	lev := decimal.NewFromInt(int64(leverage))
	im := margin.InitialMargin(notional, schedule, lev)
	posted := im
	if leverage > 0 {
		posted = decimal.Max(im, notional.Div(lev))
	}
	liq, err := s.liquidation(ctx, req, mode, entry, posted, schedule)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		ID:                uuid.NewString(),
		Coin:              req.Coin,
		Side:              req.Side,
		Size:              req.Size,
		Mode:              mode,
		Leverage:          leverage,
		ReferencePrice:    ref,
		Fill:              result,
		OrderPrice:        s.prices.Format(orderPrice, asset.SzDecimals),
		OrderValue:        notional,
		Fee:               s.fees.Fee(notional, req.IsMaker, req.BuilderBps),
		InitialMargin:     im,
		PostedMargin:      posted,
		MaintenanceMargin: margin.MaintenanceMargin(notional, schedule),
		MaxLeverage:       maxLev,
		LiquidationPrice:  liq,
		Time:              s.now(),
	}, nil
}

func (s *QuoteService) validate(req QuoteRequest) error {
	if !req.Side.Valid() {
		return fmt.Errorf("quote_service: %w: side %q", domain.ErrInvalidOrder, req.Side)
	}
	if !req.Size.IsPositive() {
		return fmt.Errorf("quote_service: %w: size must be positive", domain.ErrInvalidOrder)
	}
	if req.Mode != "" && req.Mode != domain.MarginModeCross && req.Mode != domain.MarginModeIsolated {
		return fmt.Errorf("quote_service: %w: mode %q", domain.ErrInvalidOrder, req.Mode)
	}
	if req.MaxSlippagePercent != nil && req.MaxSlippagePercent.IsNegative() {
		return fmt.Errorf("quote_service: %w: negative slippage", domain.ErrInvalidOrder)
	}
	if req.Address != "" && !common.IsHexAddress(req.Address) {
		return fmt.Errorf("quote_service: %w: %s", domain.ErrInvalidAddress, req.Address)
	}
	if sub := s.book.Subscription(); req.Coin != sub.Coin {
		return fmt.Errorf("quote_service: %w: book is subscribed to %s, not %s", domain.ErrInvalidOrder, sub.Coin, req.Coin)
	}
	return nil
}

// referencePrice prefers the mark price and falls back to the book mid.
func (s *QuoteService) referencePrice(ctx context.Context, coin string, bids, asks book.Ladder) (decimal.Decimal, error) {
	mark, _, err := s.market.Mark(ctx, coin)
	if err == nil && mark.IsPositive() {
		return mark, nil
	}
	if mid := book.Mid(bids, asks); mid.IsPositive() {
		return mid, nil
	}
	if err == nil {
		err = domain.ErrNotFound
	}
	return decimal.Zero, fmt.Errorf("quote_service: no reference price for %s: %w", coin, err)
}

// liquidation estimates the liquidation price of the order once filled.
// Without an account the posted margin is the only collateral.
func (s *QuoteService) liquidation(ctx context.Context, req QuoteRequest, mode domain.MarginMode, entry, posted decimal.Decimal, schedule margin.Schedule) (decimal.Decimal, error) {
	in := margin.LiquidationInput{
		Price:          entry,
		Side:           req.Side,
		Size:           req.Size,
		Mode:           mode,
		Schedule:       schedule,
		AccountValue:   posted,
		IsolatedMargin: posted,
	}

	if req.Address != "" && mode == domain.MarginModeCross {
		acct, err := s.market.Account(ctx, strings.ToLower(req.Address))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("quote_service: %w", err)
		}
		if err == nil {
			in.AccountValue = acct.AccountValue
			in.OtherMaintenanceMargin = acct.OtherCrossMaintenanceMargin(req.Coin)
		}
	}

	return margin.EstimateLiquidation(in), nil
}
