package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/platform/hyperliquid"
)

type fakeClient struct {
	mu          sync.Mutex
	connectErrs int
	connected   bool
	calls       []string
	book        hyperliquid.BookHandler
	trades      hyperliquid.TradesHandler
	state       hyperliquid.StateHandler
	closed      bool
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	if c.connectErrs > 0 {
		c.connectErrs--
		c.mu.Unlock()
		return errors.New("dial refused")
	}
	c.connected = true
	state := c.state
	c.mu.Unlock()
	state(true)
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, spec hyperliquid.SubscriptionSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errors.New("not connected")
	}
	c.calls = append(c.calls, "sub:"+spec.Key())
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, spec hyperliquid.SubscriptionSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "unsub:"+spec.Key())
	return nil
}

func (c *fakeClient) OnBook(h hyperliquid.BookHandler)     { c.book = h }
func (c *fakeClient) OnTrades(h hyperliquid.TradesHandler) { c.trades = h }
func (c *fakeClient) OnState(h hyperliquid.StateHandler)   { c.state = h }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
	books  []domain.BookSnapshot
	trades []domain.Trade
}

func (s *fakeSink) ApplyBook(snap domain.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, snap)
	s.events = append(s.events, "book:"+snap.Coin)
}

func (s *fakeSink) ApplyTrades(trades []domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
}

func (s *fakeSink) Reset(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "reset:"+sub.Key())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func btc() domain.Subscription { return domain.Subscription{Coin: "BTC"} }

func startFeed(t *testing.T, client *fakeClient, sink *fakeSink) (*MarketFeed, context.CancelFunc, chan error) {
	t.Helper()
	f := NewMarketFeed(client, sink, btc(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	require.Eventually(t, func() bool { return f.Status().Connected }, time.Second, 5*time.Millisecond)
	return f, cancel, done
}

func TestRunSubscribesOnConnect(t *testing.T) {
	client := &fakeClient{}
	_, cancel, done := startFeed(t, client, &fakeSink{})

	assert.Eventually(t, func() bool { return len(client.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"sub:" + hyperliquid.L2BookSubscription(btc()).Key(),
		"sub:" + hyperliquid.TradesSubscription("BTC").Key(),
	}, client.Calls())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, client.closed)
}

func TestSwitchResetsBeforeSubscribing(t *testing.T) {
	client := &fakeClient{}
	sink := &fakeSink{}
	f, cancel, done := startFeed(t, client, sink)
	defer func() { cancel(); <-done }()
	require.Eventually(t, func() bool { return len(client.Calls()) == 2 }, time.Second, 5*time.Millisecond)

	gen := f.Status().Generation
	eth := domain.Subscription{Coin: "ETH", Precision: domain.Precision{SigFigs: 5, Mantissa: 2}}
	require.NoError(t, f.Switch(context.Background(), eth))

	calls := client.Calls()[2:]
	assert.Equal(t, []string{
		"unsub:" + hyperliquid.L2BookSubscription(btc()).Key(),
		"unsub:" + hyperliquid.TradesSubscription("BTC").Key(),
		"sub:" + hyperliquid.L2BookSubscription(eth).Key(),
		"sub:" + hyperliquid.TradesSubscription("ETH").Key(),
	}, calls)
	assert.Equal(t, []string{"reset:" + eth.Key()}, sink.events)
	assert.NotEqual(t, gen, f.Status().Generation)
	assert.Equal(t, eth, f.Subscription())

	// Same subscription again is a no-op.
	require.NoError(t, f.Switch(context.Background(), eth))
	assert.Len(t, client.Calls(), 6)
}

func TestSwitchPrecisionKeepsTrades(t *testing.T) {
	client := &fakeClient{}
	f, cancel, done := startFeed(t, client, &fakeSink{})
	defer func() { cancel(); <-done }()
	require.Eventually(t, func() bool { return len(client.Calls()) == 2 }, time.Second, 5*time.Millisecond)

	coarse := domain.Subscription{Coin: "BTC", Precision: domain.Precision{SigFigs: 3}}
	require.NoError(t, f.Switch(context.Background(), coarse))

	assert.Equal(t, []string{
		"unsub:" + hyperliquid.L2BookSubscription(btc()).Key(),
		"sub:" + hyperliquid.L2BookSubscription(coarse).Key(),
		"sub:" + hyperliquid.TradesSubscription("BTC").Key(),
	}, client.Calls()[2:])
}

func TestSwitchRejectsInvalid(t *testing.T) {
	f := NewMarketFeed(&fakeClient{}, &fakeSink{}, btc(), testLogger())
	err := f.Switch(context.Background(), domain.Subscription{Coin: "BTC", Precision: domain.Precision{SigFigs: 4, Mantissa: 2}})
	assert.ErrorIs(t, err, domain.ErrInvalidSubscription)
}

func TestStaleMessagesDropped(t *testing.T) {
	client := &fakeClient{}
	sink := &fakeSink{}
	f := NewMarketFeed(client, sink, btc(), testLogger())

	client.book(domain.BookSnapshot{Coin: "ETH"})
	client.book(domain.BookSnapshot{Coin: "BTC"})
	client.trades([]domain.Trade{
		{Coin: "BTC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)},
		{Coin: "ETH", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)},
	})

	assert.Equal(t, []string{"book:BTC"}, sink.events)
	assert.Len(t, sink.trades, 1)
	assert.Equal(t, uint64(2), f.Status().Stale)
}

func TestSwitchWhileDisconnectedSubscribesOnConnect(t *testing.T) {
	client := &fakeClient{}
	sink := &fakeSink{}
	f := NewMarketFeed(client, sink, btc(), testLogger())

	eth := domain.Subscription{Coin: "ETH"}
	require.NoError(t, f.Switch(context.Background(), eth))

	require.NoError(t, client.Connect(context.Background()))
	calls := client.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "sub:"+hyperliquid.L2BookSubscription(eth).Key(), calls[2])
}

func TestRunRetriesInitialConnect(t *testing.T) {
	client := &fakeClient{connectErrs: 1}
	f := NewMarketFeed(client, &fakeSink{}, btc(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.Status().Connected }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
