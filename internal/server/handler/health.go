package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/feed"
	"github.com/alanyoungcy/perpdepth/internal/service"
)

// FeedStatus reports the state of the market feed.
type FeedStatus interface {
	Status() feed.Status
}

// DepthStatus reports what the depth service has processed.
type DepthStatus interface {
	Stats() service.DepthStats
}

// RefreshStatus reports when market metadata was last loaded.
type RefreshStatus interface {
	RefreshedAt() time.Time
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	feed    FeedStatus
	depth   DepthStatus
	market  RefreshStatus
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Any source may be nil.
func NewHealthHandler(feed FeedStatus, depth DepthStatus, market RefreshStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		feed:    feed,
		depth:   depth,
		market:  market,
		started: time.Now(),
		logger:  logHandler(logger, "health"),
	}
}

type healthResponse struct {
	Status        string              `json:"status"`
	Timestamp     string              `json:"timestamp"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Feed          *feed.Status        `json:"feed,omitempty"`
	Depth         *service.DepthStats `json:"depth,omitempty"`
	MarketsAt     *time.Time          `json:"markets_refreshed_at,omitempty"`
}

// HealthCheck reports liveness. Status is "degraded" while the feed is
// disconnected or market metadata has never loaded; the response is 200
// either way.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.feed != nil {
		st := h.feed.Status()
		resp.Feed = &st
		if !st.Connected {
			resp.Status = "degraded"
		}
	}
	if h.depth != nil {
		st := h.depth.Stats()
		resp.Depth = &st
	}
	if h.market != nil {
		at := h.market.RefreshedAt()
		if at.IsZero() {
			resp.Status = "degraded"
		} else {
			resp.MarketsAt = &at
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
