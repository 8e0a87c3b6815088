package redis

import (
	"testing"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(prefix string) *Client {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	return NewFromClient(rdb, prefix, time.Minute)
}

func TestKeyPrefix(t *testing.T) {
	c := testClient("perpdepth:")
	defer c.Close()

	assert.Equal(t, "perpdepth:mark:BTC", NewPriceCache(c).markKey("BTC"))
	bc := NewBookCache(c)
	assert.Equal(t, "perpdepth:book:ETH:view", bc.viewKey("ETH"))
	assert.Equal(t, "perpdepth:book:ETH:bbo", bc.bboKey("ETH"))
	assert.Equal(t, "perpdepth:trades:ETH", bc.tradesKey("ETH"))
}

func TestDecodeMark(t *testing.T) {
	ts := time.Unix(1700000000, 5)
	px, got, err := decodeMark("BTC", map[string]string{"px": "67000.5", "ts": "1700000000000000005"})
	require.NoError(t, err)
	assert.True(t, px.Equal(decimal.RequireFromString("67000.5")))
	assert.True(t, got.Equal(ts))

	_, _, err = decodeMark("BTC", map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = decodeMark("BTC", map[string]string{"px": "abc", "ts": "1"})
	assert.Error(t, err)
}

func TestBBOFields(t *testing.T) {
	view := domain.BookView{
		Coin: "BTC",
		Bids: []domain.BookLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
		Asks: []domain.BookLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(2)}},
		Spread: domain.Spread{
			Value: decimal.NewFromInt(1),
		},
		Time: time.UnixMilli(42),
	}
	f := bboFields(view)
	assert.Equal(t, "100", f["bid"])
	assert.Equal(t, "101", f["ask"])
	assert.Equal(t, "1", f["spread"])
	assert.Equal(t, int64(42), f["ts"])

	empty := bboFields(domain.BookView{Coin: "BTC"})
	assert.Equal(t, "", empty["bid"])
	assert.Equal(t, "", empty["ask"])
}

func TestRateLimiterWindowKey(t *testing.T) {
	c := testClient("p:")
	defer c.Close()

	rl := NewRateLimiter(c)
	rl.now = func() time.Time { return time.Unix(120, 0) }
	assert.Equal(t, "p:rl:1.2.3.4:2", rl.windowKey("1.2.3.4", time.Minute))

	rl.now = func() time.Time { return time.Unix(179, 0) }
	assert.Equal(t, "p:rl:1.2.3.4:2", rl.windowKey("1.2.3.4", time.Minute))

	rl.now = func() time.Time { return time.Unix(180, 0) }
	assert.Equal(t, "p:rl:1.2.3.4:3", rl.windowKey("1.2.3.4", time.Minute))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("book:*"))
	assert.False(t, hasPattern("book:BTC"))
}
