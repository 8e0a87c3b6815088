package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/book"
	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/alanyoungcy/perpdepth/internal/tape"
)

// eventBuffer is the number of events queued for publishing before new
// ones are dropped.
const eventBuffer = 256

// DepthConfig sizes the book and tape of a DepthService.
type DepthConfig struct {
	Depth          int
	HighlightTTL   time.Duration
	TapeSize       int
	PublishTimeout time.Duration
}

// DepthStats counts what a DepthService has processed.
type DepthStats struct {
	Snapshots     uint64 `json:"snapshots"`
	Ignored       uint64 `json:"ignored"`
	Trades        uint64 `json:"trades"`
	DroppedEvents uint64 `json:"dropped_events"`
}

// DepthService owns the reconciler and trade tape of the active
// subscription. Views and tapes are published on the SignalBus and cached
// by a background worker so the feed goroutine never waits on Redis.
type DepthService struct {
	rec    *book.Reconciler
	tape   *tape.Tape
	cache  domain.BookCache
	bus    domain.SignalBus
	cfg    DepthConfig
	logger *slog.Logger

	events chan domain.Event

	snapshots atomic.Uint64
	ignored   atomic.Uint64
	trades    atomic.Uint64
	dropped   atomic.Uint64
}

// NewDepthService creates a DepthService for sub. cache and bus may be nil,
// in which case nothing is published.
func NewDepthService(sub domain.Subscription, cfg DepthConfig, cache domain.BookCache, bus domain.SignalBus, logger *slog.Logger) *DepthService {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &DepthService{
		rec:    book.NewReconciler(sub, book.WithDepth(cfg.Depth), book.WithHighlightTTL(cfg.HighlightTTL)),
		tape:   tape.New(sub.Coin, cfg.TapeSize),
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "depth_service")),
		events: make(chan domain.Event, eventBuffer),
	}
}

// ApplyBook merges a snapshot into the book.
func (s *DepthService) ApplyBook(snap domain.BookSnapshot) {
	view, ok := s.rec.Apply(snap)
	if !ok {
		s.ignored.Add(1)
		return
	}
	s.snapshots.Add(1)
	s.enqueue(domain.Event{Type: domain.EventBook, Coin: view.Coin, Seq: view.Seq, Data: view})
}

// ApplyTrades pushes a batch onto the tape.
func (s *DepthService) ApplyTrades(trades []domain.Trade) {
	n := s.tape.Push(trades)
	if n == 0 {
		return
	}
	s.trades.Add(uint64(n))
	s.enqueue(domain.Event{Type: domain.EventTrades, Coin: s.tape.Coin(), Data: s.tape.Trades()})
}

// Reset rebinds the book and tape to sub and discards their contents.
func (s *DepthService) Reset(sub domain.Subscription) {
	s.rec.Reset(sub)
	s.tape.Reset(sub.Coin)
	s.logger.Info("book reset", slog.String("subscription", sub.Key()))
}

// View returns the current reconciled view.
func (s *DepthService) View() domain.BookView { return s.rec.View() }

// Trades returns the tape, newest first.
func (s *DepthService) Trades() []domain.Trade { return s.tape.Trades() }

// Ladders returns copies of both ladders.
func (s *DepthService) Ladders() (bids, asks book.Ladder) { return s.rec.Ladders() }

// Subscription returns the subscription the book is bound to.
func (s *DepthService) Subscription() domain.Subscription { return s.rec.Subscription() }

// Stats returns processing counters.
func (s *DepthService) Stats() DepthStats {
	return DepthStats{
		Snapshots:     s.snapshots.Load(),
		Ignored:       s.ignored.Load(),
		Trades:        s.trades.Load(),
		DroppedEvents: s.dropped.Load(),
	}
}

// Run publishes queued events until ctx is cancelled.
func (s *DepthService) Run(ctx context.Context) error {
	defer s.rec.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-s.events:
			s.publish(ctx, evt)
		}
	}
}

func (s *DepthService) enqueue(evt domain.Event) {
	if s.cache == nil && s.bus == nil {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.dropped.Add(1)
	}
}

func (s *DepthService) publish(ctx context.Context, evt domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	if s.cache != nil {
		var err error
		switch data := evt.Data.(type) {
		case domain.BookView:
			err = s.cache.SetView(ctx, data)
		case []domain.Trade:
			err = s.cache.SetTrades(ctx, evt.Coin, data)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "cache update failed",
				slog.String("coin", evt.Coin),
				slog.String("type", string(evt.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("encode event", slog.String("error", err.Error()))
		return
	}
	channel := domain.BookChannel(evt.Coin)
	if evt.Type == domain.EventTrades {
		channel = domain.TradesChannel(evt.Coin)
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
