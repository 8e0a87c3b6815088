package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/pricefmt"
)

// AssetSource resolves static metadata, margin schedule and live context of
// a coin.
type AssetSource interface {
	Assets() []domain.AssetInfo
	Asset(coin string) (domain.AssetInfo, error)
	AssetContext(coin string) (domain.AssetContext, error)
	Schedule(coin string) (margin.Schedule, error)
}

// AssetHandler serves market metadata.
type AssetHandler struct {
	assets AssetSource
	prices pricefmt.Formatter
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(assets AssetSource, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		assets: assets,
		prices: pricefmt.Perp(),
		logger: logHandler(logger, "asset"),
	}
}

type assetResponse struct {
	Asset      domain.AssetInfo     `json:"asset"`
	Tiers      []domain.MarginTier  `json:"tiers,omitempty"`
	TiersError string               `json:"tiers_error,omitempty"`
	Context    *domain.AssetContext `json:"context,omitempty"`
	Tick       *decimal.Decimal     `json:"tick,omitempty"`
}

// ListAssets returns the metadata of every known coin.
// GET /api/assets
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assets.Assets())
}

// GetAsset returns metadata, margin tiers and, once loaded, the live context
// and price tick of a coin.
// GET /api/assets/{coin}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	coin := pathParam(r, "coin")
	if coin == "" {
		writeError(w, http.StatusBadRequest, "missing coin")
		return
	}

	info, err := h.assets.Asset(coin)
	if err != nil {
		writeServiceError(w, r, h.logger, "get asset", err)
		return
	}

	resp := assetResponse{Asset: info}
	if s, err := h.assets.Schedule(coin); err != nil {
		resp.TiersError = err.Error()
	} else if !s.Empty() {
		resp.Tiers = s.Tiers()
	}
	if ac, err := h.assets.AssetContext(coin); err == nil {
		resp.Context = &ac
		if ac.MarkPrice.IsPositive() {
			tick := h.prices.Tick(ac.MarkPrice, info.SzDecimals)
			resp.Tick = &tick
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
