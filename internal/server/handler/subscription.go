package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/feed"
)

// SubscriptionSwitcher moves the market feed to another subscription.
type SubscriptionSwitcher interface {
	Switch(ctx context.Context, sub domain.Subscription) error
	Status() feed.Status
}

// AssetLookup resolves coin metadata.
type AssetLookup interface {
	Asset(coin string) (domain.AssetInfo, error)
}

// SubscriptionHandler reads and changes the active (coin, precision) pair.
type SubscriptionHandler struct {
	feed   SubscriptionSwitcher
	assets AssetLookup
	logger *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler. assets may be nil,
// in which case coins are not checked against market metadata.
func NewSubscriptionHandler(sw SubscriptionSwitcher, assets AssetLookup, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		feed:   sw,
		assets: assets,
		logger: logHandler(logger, "subscription"),
	}
}

// GetSubscription returns the feed status including the subscription.
// GET /api/subscription
func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.Status())
}

// PutSubscription switches the feed.
// PUT /api/subscription
func (h *SubscriptionHandler) PutSubscription(w http.ResponseWriter, r *http.Request) {
	var sub domain.Subscription
	if err := decodeJSON(w, r, &sub); err != nil {
		writeServiceError(w, r, h.logger, "switch subscription", err)
		return
	}
	if err := sub.Validate(); err != nil {
		writeServiceError(w, r, h.logger, "switch subscription", err)
		return
	}
	if h.assets != nil {
		if _, err := h.assets.Asset(sub.Coin); err != nil {
			writeServiceError(w, r, h.logger, "switch subscription", err)
			return
		}
	}

	if err := h.feed.Switch(r.Context(), sub); err != nil {
		writeServiceError(w, r, h.logger, "switch subscription", err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription changed",
		slog.String("coin", sub.Coin),
		slog.Int("sig_figs", sub.Precision.SigFigs),
		slog.Int("mantissa", sub.Precision.Mantissa),
	)
	writeJSON(w, http.StatusOK, h.feed.Status())
}
