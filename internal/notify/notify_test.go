package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAlertFilterAndCooldown(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, []string{EventFeedDown}, time.Minute, discard())
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }

	assert.True(t, n.Alert(EventFeedDown, "down", ""))
	assert.False(t, n.Alert(EventFeedUp, "up", ""), "filtered")
	assert.False(t, n.Alert(EventFeedDown, "down again", ""), "cooldown")

	now = now.Add(2 * time.Minute)
	assert.True(t, n.Alert(EventFeedDown, "down later", ""))
	assert.Len(t, n.queue, 2)
}

func TestAlertWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, 0, discard())
	assert.False(t, n.Enabled())
	assert.False(t, n.Alert(EventFeedDown, "down", ""))
}

func TestRunDelivers(t *testing.T) {
	ok := &recordingSender{}
	failing := &recordingSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{failing, ok}, nil, 0, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()

	n.Alert(EventFeedDown, "down", "msg")
	require.Eventually(t, func() bool { return len(ok.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"down"}, failing.sent())

	cancel()
	<-done
}

func TestFeedStateAlerter(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, nil, 0, discard())
	now := time.Unix(1000, 0)
	n.now = func() time.Time { return now }
	onState := n.FeedStateAlerter(func() string { return "BTC" })

	onState(true)
	assert.Empty(t, n.queue, "first connect is silent")

	onState(false)
	onState(false)
	now = now.Add(42 * time.Second)
	onState(true)

	require.Len(t, n.queue, 2)
	first := <-n.queue
	second := <-n.queue
	assert.Equal(t, EventFeedDown, first.event)
	assert.Equal(t, EventFeedUp, second.event)
	assert.Contains(t, second.message, "42s")
}

func TestSenders(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "42")
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])

	dc := NewDiscordSender(srv.URL + "/hook")
	require.NoError(t, dc.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "/hook", path)
	assert.Equal(t, "**Title**\nbody", got["content"])
}

func TestSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
