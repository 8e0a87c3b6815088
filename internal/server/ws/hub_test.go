package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

type fakeBus struct {
	chans map[string]chan []byte
}

func newFakeBus() *fakeBus {
	b := &fakeBus{chans: make(map[string]chan []byte)}
	for _, p := range busPatterns {
		b.chans[p] = make(chan []byte, 8)
	}
	return b
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.chans[channel], nil
}

func event(t *testing.T, typ domain.EventType, coin string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.Event{Type: typ, Coin: coin, Seq: 1, Data: map[string]string{"k": "v"}})
	require.NoError(t, err)
	return data
}

func TestRouteChannel(t *testing.T) {
	assert.Equal(t, "ch:book:BTC", routeChannel(event(t, domain.EventBook, "BTC")))
	assert.Equal(t, "ch:trades:ETH", routeChannel(event(t, domain.EventTrades, "ETH")))
	assert.Empty(t, routeChannel([]byte(`{"type":"fills","coin":"BTC"}`)))
	assert.Empty(t, routeChannel([]byte(`{"type":"book"}`)))
	assert.Empty(t, routeChannel([]byte(`not json`)))
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:book:*": true}}
	assert.True(t, c.isSubscribed("ch:book:BTC"))
	assert.False(t, c.isSubscribed("ch:trades:BTC"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Coins: []string{"ETH"}})
	assert.True(t, c.isSubscribed("ch:trades:ETH"))
	assert.False(t, c.isSubscribed("ch:trades:BTC"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:book:*"}})
	assert.False(t, c.isSubscribed("ch:book:BTC"))
	assert.True(t, c.isSubscribed("ch:book:ETH"))
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, checkOrigin([]string{"https://a.example"})(req))

	req.Header.Set("Origin", "https://b.example")
	assert.False(t, checkOrigin([]string{"https://a.example"})(req))
	assert.True(t, checkOrigin(nil)(req))
	assert.True(t, checkOrigin([]string{"*"})(req))
}

func TestHubDeliversEvents(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Status: func() any { return map[string]string{"coin": "BTC"} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)

	var status struct {
		Type string `json:"type"`
		Data struct {
			Status map[string]string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &status))
	assert.Equal(t, "status", status.Type)
	assert.Equal(t, "BTC", status.Data.Status["coin"])

	bus.chans[domain.BookChannel("*")] <- event(t, domain.EventBook, "BTC")

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	var evt domain.Event
	require.NoError(t, json.Unmarshal(msg, &evt))
	assert.Equal(t, domain.EventBook, evt.Type)
	assert.Equal(t, "BTC", evt.Coin)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
}
