package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/feed"
	"github.com/alanyoungcy/perpdepth/internal/margin"
	"github.com/alanyoungcy/perpdepth/internal/service"
	"github.com/alanyoungcy/perpdepth/internal/tpsl"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeDepth struct {
	sub    domain.Subscription
	view   domain.BookView
	trades []domain.Trade
}

func (f *fakeDepth) View() domain.BookView              { return f.view }
func (f *fakeDepth) Trades() []domain.Trade             { return f.trades }
func (f *fakeDepth) Subscription() domain.Subscription { return f.sub }
func (f *fakeDepth) Stats() service.DepthStats          { return service.DepthStats{Snapshots: 3} }

type fakeCache struct {
	views  map[string]domain.BookView
	trades map[string][]domain.Trade
}

func (f *fakeCache) SetView(context.Context, domain.BookView) error { return nil }
func (f *fakeCache) GetView(_ context.Context, coin string) (domain.BookView, error) {
	v, ok := f.views[coin]
	if !ok {
		return domain.BookView{}, domain.ErrNotFound
	}
	return v, nil
}
func (f *fakeCache) SetTrades(context.Context, string, []domain.Trade) error { return nil }
func (f *fakeCache) GetTrades(_ context.Context, coin string) ([]domain.Trade, error) {
	t, ok := f.trades[coin]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

type fakeFeed struct {
	status   feed.Status
	switched []domain.Subscription
	err      error
}

func (f *fakeFeed) Status() feed.Status { return f.status }
func (f *fakeFeed) Switch(_ context.Context, sub domain.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.switched = append(f.switched, sub)
	f.status.Subscription = sub
	return nil
}

type fakeAssets struct{}

func (fakeAssets) Assets() []domain.AssetInfo {
	return []domain.AssetInfo{{Coin: "BTC", MaxLeverage: 40}, {Coin: "ETH", MaxLeverage: 40}}
}

func (fakeAssets) Schedule(coin string) (margin.Schedule, error) {
	if coin != "BTC" {
		return margin.Schedule{}, fmt.Errorf("schedule %s: %w", coin, domain.ErrInvalidTiers)
	}
	upper := decimal.NewFromInt(1_000_000)
	return margin.NewSchedule([]domain.MarginTier{
		{MaxNotional: &upper, IMF: decimal.RequireFromString("0.025"), MMF: decimal.RequireFromString("0.0125")},
		{IMF: decimal.RequireFromString("0.05"), MMF: decimal.RequireFromString("0.025")},
	})
}

func (fakeAssets) Asset(coin string) (domain.AssetInfo, error) {
	if coin != "BTC" && coin != "ETH" {
		return domain.AssetInfo{}, domain.ErrUnknownCoin
	}
	return domain.AssetInfo{Coin: coin, MaxLeverage: 40}, nil
}

func (fakeAssets) AssetContext(coin string) (domain.AssetContext, error) {
	if coin != "BTC" {
		return domain.AssetContext{}, domain.ErrUnknownCoin
	}
	return domain.AssetContext{Coin: coin, MarkPrice: decimal.NewFromInt(100)}, nil
}

type fakeRefresh struct{ at time.Time }

func (f fakeRefresh) RefreshedAt() time.Time { return f.at }

type fakeQuoter struct {
	got service.QuoteRequest
	err error
}

func (f *fakeQuoter) Quote(_ context.Context, req service.QuoteRequest) (service.Quote, error) {
	f.got = req
	if f.err != nil {
		return service.Quote{}, f.err
	}
	return service.Quote{Coin: req.Coin, OrderPrice: "101"}, nil
}

type fakeTpsl struct{}

func (fakeTpsl) Quote(req service.TpslRequest) (tpsl.Quote, error) {
	if req.Entry.IsZero() {
		return tpsl.Quote{}, domain.ErrInvalidOrder
	}
	return tpsl.Quote{TakeProfit: tpsl.LegQuote{Enabled: true, Price: decimal.NewFromInt(110), Valid: true}}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	depth := &fakeDepth{}
	ff := &fakeFeed{status: feed.Status{Connected: true}}

	h := NewHealthHandler(ff, depth, fakeRefresh{at: time.Now()}, discard())
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	decode(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	require.NotNil(t, body.Depth)
	assert.EqualValues(t, 3, body.Depth.Snapshots)

	ff.status.Connected = false
	rec = httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	decode(t, rec, &body)
	assert.Equal(t, "degraded", body.Status)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil, nil, nil, discard()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	decode(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
}

func TestGetBook(t *testing.T) {
	depth := &fakeDepth{
		sub:  domain.Subscription{Coin: "BTC"},
		view: domain.BookView{Coin: "BTC", Seq: 7},
	}
	cache := &fakeCache{views: map[string]domain.BookView{"ETH": {Coin: "ETH", Seq: 2}}}
	h := NewBookHandler(depth, cache, discard())

	cases := []struct {
		query  string
		status int
		seq    uint64
	}{
		{"", http.StatusOK, 7},
		{"?coin=BTC", http.StatusOK, 7},
		{"?coin=ETH", http.StatusOK, 2},
		{"?coin=SOL", http.StatusNotFound, 0},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book"+tc.query, nil))
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				var v domain.BookView
				decode(t, rec, &v)
				assert.Equal(t, tc.seq, v.Seq)
			}
		})
	}

	rec := httptest.NewRecorder()
	NewBookHandler(depth, nil, discard()).GetBook(rec, httptest.NewRequest(http.MethodGet, "/api/book?coin=ETH", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTrades(t *testing.T) {
	now := time.Now()
	depth := &fakeDepth{
		sub: domain.Subscription{Coin: "BTC"},
		trades: []domain.Trade{
			{Coin: "BTC", Hash: "c", Time: now},
			{Coin: "BTC", Hash: "b", Time: now.Add(-time.Second)},
			{Coin: "BTC", Hash: "a", Time: now.Add(-2 * time.Second)},
		},
	}
	h := NewBookHandler(depth, &fakeCache{}, discard())

	rec := httptest.NewRecorder()
	h.GetTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body tradesResponse
	decode(t, rec, &body)
	assert.Equal(t, "BTC", body.Coin)
	require.Len(t, body.Trades, 2)
	assert.Equal(t, "c", body.Trades[0].Hash)

	rec = httptest.NewRecorder()
	h.GetTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades?coin=ETH", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	depth.trades = nil
	rec = httptest.NewRecorder()
	h.GetTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	assert.JSONEq(t, `{"coin":"BTC","trades":[]}`, rec.Body.String())
}

func TestSubscription(t *testing.T) {
	ff := &fakeFeed{status: feed.Status{Subscription: domain.Subscription{Coin: "BTC"}, Connected: true}}
	h := NewSubscriptionHandler(ff, fakeAssets{}, discard())

	rec := httptest.NewRecorder()
	h.GetSubscription(rec, httptest.NewRequest(http.MethodGet, "/api/subscription", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"switch", `{"coin":"ETH","precision":{"sig_figs":5,"mantissa":2}}`, http.StatusOK},
		{"bad json", `{"coin":`, http.StatusBadRequest},
		{"unknown field", `{"coin":"ETH","depth":3}`, http.StatusBadRequest},
		{"bad precision", `{"coin":"ETH","precision":{"sig_figs":3,"mantissa":2}}`, http.StatusBadRequest},
		{"unknown coin", `{"coin":"DOGE"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/api/subscription", strings.NewReader(tc.body))
			h.PutSubscription(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	require.Len(t, ff.switched, 1)
	assert.Equal(t, domain.Subscription{Coin: "ETH", Precision: domain.Precision{SigFigs: 5, Mantissa: 2}}, ff.switched[0])

	ff.err = errors.New("socket closed")
	rec = httptest.NewRecorder()
	h.PutSubscription(rec, httptest.NewRequest(http.MethodPut, "/api/subscription", strings.NewReader(`{"coin":"BTC"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPostQuote(t *testing.T) {
	q := &fakeQuoter{}
	h := NewQuoteHandler(q, fakeTpsl{}, discard())

	rec := httptest.NewRecorder()
	body := `{"coin":"BTC","side":"buy","size":"2","leverage":10,"mode":"cross","max_slippage_percent":5}`
	h.PostQuote(rec, httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, domain.OrderSideBuy, q.got.Side)
	assert.True(t, q.got.Size.Equal(decimal.NewFromInt(2)))
	require.NotNil(t, q.got.MaxSlippagePercent)
	assert.True(t, q.got.MaxSlippagePercent.Equal(decimal.NewFromInt(5)))

	var out service.Quote
	decode(t, rec, &out)
	assert.Equal(t, "101", out.OrderPrice)

	q.err = domain.ErrInvalidOrder
	rec = httptest.NewRecorder()
	h.PostQuote(rec, httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostTpsl(t *testing.T) {
	h := NewQuoteHandler(&fakeQuoter{}, fakeTpsl{}, discard())

	rec := httptest.NewRecorder()
	body := `{"coin":"BTC","side":"buy","entry":"100","leverage":"10","size":"1","take_profit":{"kind":"price","value":"110"}}`
	h.PostTpsl(rec, httptest.NewRequest(http.MethodPost, "/api/tpsl", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out tpsl.Quote
	decode(t, rec, &out)
	assert.True(t, out.TakeProfit.Valid)

	rec = httptest.NewRecorder()
	h.PostTpsl(rec, httptest.NewRequest(http.MethodPost, "/api/tpsl", strings.NewReader(`{"coin":"BTC"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAsset(t *testing.T) {
	h := NewAssetHandler(fakeAssets{}, discard())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/assets/{coin}", h.GetAsset)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/BTC", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out assetResponse
	decode(t, rec, &out)
	assert.Equal(t, 40, out.Asset.MaxLeverage)
	require.NotNil(t, out.Context)
	assert.True(t, out.Context.MarkPrice.Equal(decimal.NewFromInt(100)))
	require.Len(t, out.Tiers, 2)
	assert.Nil(t, out.Tiers[1].MaxNotional)
	assert.Empty(t, out.TiersError)
	require.NotNil(t, out.Tick)
	assert.Equal(t, "0.01", out.Tick.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/ETH", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out = assetResponse{}
	decode(t, rec, &out)
	assert.Nil(t, out.Context)
	assert.Nil(t, out.Tick)
	assert.Empty(t, out.Tiers)
	assert.Contains(t, out.TiersError, "invalid margin tiers")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/assets/DOGE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAssets(t *testing.T) {
	h := NewAssetHandler(fakeAssets{}, discard())
	rec := httptest.NewRecorder()
	h.ListAssets(rec, httptest.NewRequest(http.MethodGet, "/api/assets", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []domain.AssetInfo
	decode(t, rec, &out)
	require.Len(t, out, 2)
	assert.Equal(t, "BTC", out[0].Coin)
	assert.Equal(t, "ETH", out[1].Coin)
}
