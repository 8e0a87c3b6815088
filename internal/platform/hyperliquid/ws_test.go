package hyperliquid

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const bookFrame = `{"channel":"l2Book","data":{"coin":"BTC","time":1700000000000,"levels":[[{"px":"100","sz":"1","n":1}],[{"px":"101","sz":"2","n":1}]]}}`

func TestWSClientSubscribeAndDispatch(t *testing.T) {
	commands := make(chan WSCommand, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cmd WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		commands <- cmd
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"subscriptionResponse","data":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(bookFrame))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"trades","data":[{"coin":"BTC","side":"A","px":"100","sz":"0.5","time":1700000000001,"hash":"0x1","tid":7}]}`))

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), discardLogger())
	defer client.Close()

	books := make(chan domain.BookSnapshot, 1)
	trades := make(chan []domain.Trade, 1)
	frames := make(chan []byte, 8)
	client.OnBook(func(s domain.BookSnapshot) { books <- s })
	client.OnTrades(func(b []domain.Trade) { trades <- b })
	client.OnRaw(func(f []byte) { frames <- f })

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Subscribe(context.Background(), L2BookSubscription(domain.Subscription{Coin: "BTC"})))

	select {
	case cmd := <-commands:
		assert.Equal(t, "subscribe", cmd.Method)
		require.NotNil(t, cmd.Subscription)
		assert.Equal(t, "l2Book", cmd.Subscription.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe command received")
	}

	select {
	case snap := <-books:
		assert.Equal(t, "BTC", snap.Coin)
		assert.Len(t, snap.Bids, 1)
		assert.Len(t, snap.Asks, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no book dispatched")
	}

	select {
	case batch := <-trades:
		require.Len(t, batch, 1)
		assert.Equal(t, domain.OrderSideSell, batch[0].Side)
	case <-time.After(2 * time.Second):
		t.Fatal("no trades dispatched")
	}

	assert.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, 1, trackedCount(client))
}

func TestWSClientUnsubscribeForgetsSpec(t *testing.T) {
	client := NewWSClient("ws://127.0.0.1:0", discardLogger())
	spec := TradesSubscription("ETH")
	client.subscriptions[spec.Key()] = spec

	require.NoError(t, client.Unsubscribe(context.Background(), spec))
	assert.Zero(t, trackedCount(client))
}

func trackedCount(w *WSClient) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscriptions)
}

func TestWSClientSubscribeRequiresConnection(t *testing.T) {
	client := NewWSClient("ws://127.0.0.1:0", discardLogger())
	assert.Error(t, client.Subscribe(context.Background(), TradesSubscription("ETH")))
}

func TestWSClientConnectAfterClose(t *testing.T) {
	client := NewWSClient("ws://127.0.0.1:0", discardLogger())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Connect(context.Background()), domain.ErrWSDisconnect)
}

func TestHandleFrameIgnoresGarbage(t *testing.T) {
	client := NewWSClient("ws://127.0.0.1:0", discardLogger())
	called := false
	client.OnBook(func(domain.BookSnapshot) { called = true })

	client.HandleFrame([]byte(`not json`))
	client.HandleFrame([]byte(`{"channel":"l2Book","data":"oops"}`))
	client.HandleFrame([]byte(`{"channel":"pong"}`))
	assert.False(t, called)

	client.HandleFrame([]byte(bookFrame))
	assert.True(t, called)
}
