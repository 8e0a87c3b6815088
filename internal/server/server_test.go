package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/feed"
	"github.com/alanyoungcy/perpdepth/internal/server/handler"
	"github.com/alanyoungcy/perpdepth/internal/service"
	"github.com/alanyoungcy/perpdepth/internal/tpsl"
)

type stubDepth struct{}

func (stubDepth) View() domain.BookView              { return domain.BookView{Coin: "BTC"} }
func (stubDepth) Trades() []domain.Trade             { return nil }
func (stubDepth) Subscription() domain.Subscription { return domain.Subscription{Coin: "BTC"} }

type stubFeed struct{}

func (stubFeed) Status() feed.Status                                 { return feed.Status{Connected: true} }
func (stubFeed) Switch(context.Context, domain.Subscription) error { return nil }

type stubQuoter struct{}

func (stubQuoter) Quote(context.Context, service.QuoteRequest) (service.Quote, error) {
	return service.Quote{}, nil
}

type stubTpsl struct{}

func (stubTpsl) Quote(service.TpslRequest) (tpsl.Quote, error) { return tpsl.Quote{}, nil }

func newTestServer(cfg Config) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(cfg, Handlers{
		Health:       handler.NewHealthHandler(stubFeed{}, nil, nil, logger),
		Book:         handler.NewBookHandler(stubDepth{}, nil, logger),
		Subscription: handler.NewSubscriptionHandler(stubFeed{}, nil, logger),
		Quote:        handler.NewQuoteHandler(stubQuoter{}, stubTpsl{}, logger),
	}, nil, logger)
	return srv.Handler()
}

func TestRoutesAndAuth(t *testing.T) {
	h := newTestServer(Config{APIKey: "k"})

	cases := []struct {
		method, path, body, key string
		status                  int
	}{
		{http.MethodGet, "/api/health", "", "", http.StatusOK},
		{http.MethodGet, "/api/book", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/book", "", "k", http.StatusOK},
		{http.MethodGet, "/api/trades", "", "k", http.StatusOK},
		{http.MethodGet, "/api/subscription", "", "k", http.StatusOK},
		{http.MethodPut, "/api/subscription", `{"coin":"ETH"}`, "k", http.StatusOK},
		{http.MethodPost, "/api/quote", `{}`, "k", http.StatusOK},
		{http.MethodPost, "/api/tpsl", `{}`, "k", http.StatusOK},
		{http.MethodDelete, "/api/book", "", "k", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/assets/BTC", "", "k", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRateLimitApplied(t *testing.T) {
	h := newTestServer(Config{RateLimit: 2, RateWindow: time.Minute})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
