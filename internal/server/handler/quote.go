package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/perpdepth/internal/service"
	"github.com/alanyoungcy/perpdepth/internal/tpsl"
)

// Quoter estimates a market order.
type Quoter interface {
	Quote(ctx context.Context, req service.QuoteRequest) (service.Quote, error)
}

// TpslQuoter derives TP/SL legs.
type TpslQuoter interface {
	Quote(req service.TpslRequest) (tpsl.Quote, error)
}

// QuoteHandler serves the pre-trade calculators.
type QuoteHandler struct {
	quotes Quoter
	tpsl   TpslQuoter
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes Quoter, tp TpslQuoter, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		tpsl:   tp,
		logger: logHandler(logger, "quote"),
	}
}

// PostQuote estimates fill, fee, margin and liquidation for an order.
// POST /api/quote
func (h *QuoteHandler) PostQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}

	q, err := h.quotes.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// PostTpsl resolves take-profit and stop-loss legs.
// POST /api/tpsl
func (h *QuoteHandler) PostTpsl(w http.ResponseWriter, r *http.Request) {
	var req service.TpslRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "tpsl", err)
		return
	}

	q, err := h.tpsl.Quote(req)
	if err != nil {
		writeServiceError(w, r, h.logger, "tpsl", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
