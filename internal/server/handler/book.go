package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// DepthSource exposes the live book and tape of the active subscription.
type DepthSource interface {
	View() domain.BookView
	Trades() []domain.Trade
	Subscription() domain.Subscription
}

// BookHandler serves the reconciled order book and trade tape. Coins other
// than the live one are answered from the shared cache, which another
// process may be filling.
type BookHandler struct {
	depth  DepthSource
	cache  domain.BookCache
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler. cache may be nil.
func NewBookHandler(depth DepthSource, cache domain.BookCache, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		depth:  depth,
		cache:  cache,
		logger: logHandler(logger, "book"),
	}
}

// GetBook returns the book view of a coin, the live one by default.
// GET /api/book?coin=BTC
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	coin := r.URL.Query().Get("coin")
	if h.isLive(coin) {
		writeJSON(w, http.StatusOK, h.depth.View())
		return
	}
	if h.cache == nil {
		writeError(w, http.StatusNotFound, "no book for "+coin)
		return
	}

	view, err := h.cache.GetView(r.Context(), coin)
	if err != nil {
		writeServiceError(w, r, h.logger, "get book", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type tradesResponse struct {
	Coin   string         `json:"coin"`
	Trades []domain.Trade `json:"trades"`
}

// GetTrades returns the newest trades of a coin, newest first.
// GET /api/trades?coin=BTC&limit=20
func (h *BookHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	coin := r.URL.Query().Get("coin")
	limit := queryInt(r, "limit", 0, 0)

	var trades []domain.Trade
	switch {
	case h.isLive(coin):
		coin = h.depth.Subscription().Coin
		trades = h.depth.Trades()
	case h.cache == nil:
		writeError(w, http.StatusNotFound, "no trades for "+coin)
		return
	default:
		var err error
		trades, err = h.cache.GetTrades(r.Context(), coin)
		if err != nil {
			writeServiceError(w, r, h.logger, "get trades", err)
			return
		}
	}

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, tradesResponse{Coin: coin, Trades: trades})
}

func (h *BookHandler) isLive(coin string) bool {
	return coin == "" || coin == h.depth.Subscription().Coin
}
