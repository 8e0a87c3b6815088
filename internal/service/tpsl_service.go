package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/pricefmt"
	"github.com/alanyoungcy/perpdepth/internal/tpsl"
)

// AssetSource resolves asset metadata.
type AssetSource interface {
	Asset(coin string) (domain.AssetInfo, error)
}

// TpslRequest carries a position and the anchors of its TP/SL legs.
type TpslRequest struct {
	Coin       string           `json:"coin"`
	Side       domain.OrderSide `json:"side"`
	Entry      decimal.Decimal  `json:"entry"`
	Threshold  decimal.Decimal  `json:"threshold"`
	Leverage   decimal.Decimal  `json:"leverage"`
	Size       decimal.Decimal  `json:"size"`
	TakeProfit *tpsl.Anchor     `json:"take_profit,omitempty"`
	StopLoss   *tpsl.Anchor     `json:"stop_loss,omitempty"`
}

// TpslService derives trigger prices and P&L for TP/SL legs, rounding
// prices to the coin's price rule.
type TpslService struct {
	assets AssetSource
	prices pricefmt.Formatter
}

// NewTpslService creates a TpslService.
func NewTpslService(assets AssetSource) *TpslService {
	return &TpslService{assets: assets, prices: pricefmt.Perp()}
}

// Quote resolves both legs of req.
func (s *TpslService) Quote(req TpslRequest) (tpsl.Quote, error) {
	if !req.Side.Valid() {
		return tpsl.Quote{}, fmt.Errorf("tpsl_service: %w: side %q", domain.ErrInvalidOrder, req.Side)
	}
	if !req.Entry.IsPositive() {
		return tpsl.Quote{}, fmt.Errorf("tpsl_service: %w: entry must be positive", domain.ErrInvalidOrder)
	}
	for _, a := range []*tpsl.Anchor{req.TakeProfit, req.StopLoss} {
		if a != nil && !validAnchor(*a) {
			return tpsl.Quote{}, fmt.Errorf("tpsl_service: %w: anchor %q/%q", domain.ErrInvalidOrder, a.Kind, a.Unit)
		}
	}

	asset, err := s.assets.Asset(req.Coin)
	if err != nil {
		return tpsl.Quote{}, fmt.Errorf("tpsl_service: %w", err)
	}

	form := tpsl.NewForm(tpsl.Params{
		Entry:        req.Entry,
		Threshold:    req.Threshold,
		Leverage:     req.Leverage,
		PositionSize: req.Size.Abs(),
		Direction:    tpsl.DirectionOf(req.Side),
		SzDecimals:   asset.SzDecimals,
	}, s.prices)
	if req.TakeProfit != nil {
		form.SetAnchor(tpsl.TakeProfit, *req.TakeProfit)
	}
	if req.StopLoss != nil {
		form.SetAnchor(tpsl.StopLoss, *req.StopLoss)
	}
	return form.Quote(), nil
}

func validAnchor(a tpsl.Anchor) bool {
	switch a.Kind {
	case tpsl.AnchorPrice:
		return true
	case tpsl.AnchorPnl:
		return a.Unit == tpsl.UnitPercent || a.Unit == tpsl.UnitUSD
	}
	return false
}
