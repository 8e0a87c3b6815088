package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// readWait is the time allowed between two server messages. The server
	// answers every ping, so a silent connection is dead.
	readWait = 60 * time.Second

	// pingPeriod sends application-level pings at this interval. Must be
	// less than readWait.
	pingPeriod = (readWait * 5) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called for every decoded l2Book message.
type BookHandler func(domain.BookSnapshot)

// TradesHandler is called for every decoded trades batch.
type TradesHandler func([]domain.Trade)

// RawHandler is called with every raw frame before it is decoded.
type RawHandler func(frame []byte)

// StateHandler is called when the connection goes up or down.
type StateHandler func(connected bool)

// WSClient is a client for the public WebSocket feed. It owns one
// connection, replays subscriptions after a reconnect and dispatches decoded
// messages to registered handlers on its read goroutine, in delivery order.
type WSClient struct {
	wsURL  string
	logger *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	closed        bool
	subscriptions map[string]SubscriptionSpec

	handlerMu     sync.RWMutex
	bookHandlers  []BookHandler
	tradeHandlers []TradesHandler
	rawHandlers   []RawHandler
	stateHandlers []StateHandler

	done chan struct{}
}

// NewWSClient creates a client for wsURL, e.g. "wss://api.hyperliquid.xyz/ws".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:         wsURL,
		logger:        logger.With(slog.String("component", "hyperliquid_ws")),
		subscriptions: make(map[string]SubscriptionSpec),
		done:          make(chan struct{}),
	}
}

// Connect dials the feed and restores every tracked subscription.
func (w *WSClient) Connect(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}

	go w.readLoop(conn)
	go w.pingLoop(conn)

	w.notifyState(true)
	return nil
}

func (w *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("hyperliquid/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid/ws: connect: %w", err)
	}
	w.conn = conn

	for _, spec := range w.subscriptions {
		if err := w.sendLocked(WSCommand{Method: "subscribe", Subscription: &spec}); err != nil {
			conn.Close()
			w.conn = nil
			return nil, fmt.Errorf("hyperliquid/ws: restore subscription %s: %w", spec.Key(), err)
		}
	}
	return conn, nil
}

// Subscribe sends a subscribe command and tracks it for reconnects.
func (w *WSClient) Subscribe(ctx context.Context, spec SubscriptionSpec) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("hyperliquid/ws: not connected")
	}
	if err := w.sendLocked(WSCommand{Method: "subscribe", Subscription: &spec}); err != nil {
		return fmt.Errorf("hyperliquid/ws: subscribe %s: %w", spec.Key(), err)
	}
	w.subscriptions[spec.Key()] = spec
	return nil
}

// Unsubscribe sends an unsubscribe command and stops tracking spec. The
// subscription is forgotten even if the command cannot be sent.
func (w *WSClient) Unsubscribe(ctx context.Context, spec SubscriptionSpec) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.subscriptions, spec.Key())
	if w.conn == nil {
		return nil
	}
	if err := w.sendLocked(WSCommand{Method: "unsubscribe", Subscription: &spec}); err != nil {
		return fmt.Errorf("hyperliquid/ws: unsubscribe %s: %w", spec.Key(), err)
	}
	return nil
}

// Close shuts down the connection and stops reconnecting.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// OnBook registers a depth handler.
func (w *WSClient) OnBook(h BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, h)
}

// OnTrades registers a trades handler.
func (w *WSClient) OnTrades(h TradesHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, h)
}

// OnRaw registers a raw frame handler.
func (w *WSClient) OnRaw(h RawHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.rawHandlers = append(w.rawHandlers, h)
}

// OnState registers a connection state handler.
func (w *WSClient) OnState(h StateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.stateHandlers = append(w.stateHandlers, h)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendLocked writes a JSON command. Caller must hold w.mu.
func (w *WSClient) sendLocked(cmd WSCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from conn until it fails, then reconnects unless
// the client was closed.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			conn.Close()

			w.mu.Lock()
			stale := w.conn != conn
			if !stale {
				w.conn = nil
			}
			closed := w.closed
			w.mu.Unlock()

			if closed || stale {
				return
			}
			w.logger.Warn("feed disconnected", slog.String("error", err.Error()))
			w.notifyState(false)
			w.reconnect()
			return
		}
		w.HandleFrame(frame)
	}
}

// pingLoop keeps the connection alive until it is replaced or closed.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.conn != conn {
				w.mu.Unlock()
				return
			}
			err := w.sendLocked(WSCommand{Method: "ping"})
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// HandleFrame decodes one raw frame and dispatches it. Frames that do not
// parse are dropped. It is exported so captured frames can be replayed
// through the same decoding path.
func (w *WSClient) HandleFrame(frame []byte) {
	w.handlerMu.RLock()
	raw := w.rawHandlers
	books := w.bookHandlers
	trades := w.tradeHandlers
	w.handlerMu.RUnlock()

	for _, h := range raw {
		h(frame)
	}

	var env WSEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		w.logger.Debug("drop unparseable frame", slog.String("error", err.Error()))
		return
	}

	switch env.Channel {
	case ChannelL2Book:
		var msg L2BookMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			w.logger.Debug("drop malformed l2Book", slog.String("error", err.Error()))
			return
		}
		snap, dropped := BookToDomain(&msg)
		if dropped > 0 {
			w.logger.Debug("dropped malformed levels", slog.String("coin", snap.Coin), slog.Int("count", dropped))
		}
		for _, h := range books {
			h(snap)
		}

	case ChannelTrades:
		var msg []WSTrade
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			w.logger.Debug("drop malformed trades", slog.String("error", err.Error()))
			return
		}
		batch, dropped := TradesToDomain(msg)
		if dropped > 0 {
			w.logger.Debug("dropped malformed trades", slog.Int("count", dropped))
		}
		if len(batch) == 0 {
			return
		}
		for _, h := range trades {
			h(batch)
		}

	case ChannelError:
		w.logger.Warn("feed error", slog.String("data", string(env.Data)))
	}
}

func (w *WSClient) notifyState(connected bool) {
	w.handlerMu.RLock()
	handlers := w.stateHandlers
	w.handlerMu.RUnlock()
	for _, h := range handlers {
		h(connected)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until it succeeds or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("feed reconnected")
			return
		}
		w.logger.Warn("reconnect failed", slog.String("error", err.Error()), slog.Duration("retry_in", delay))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
