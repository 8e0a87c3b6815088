// Package notify delivers operator alerts (feed outages and recoveries) to
// chat channels. Alerts are queued without blocking the caller, filtered by
// event type and rate limited per event so a flapping connection does not
// flood the channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Alert event types.
const (
	EventFeedDown = "feed_down"
	EventFeedUp   = "feed_up"
)

// sendTimeout bounds one delivery to all senders.
const sendTimeout = 15 * time.Second

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

type alert struct {
	event   string
	title   string
	message string
}

// Notifier dispatches alerts to one or more Senders from a background
// goroutine. Only events in the allowed set are forwarded; an empty set
// allows all.
type Notifier struct {
	senders  []Sender
	events   map[string]bool // allowed event types
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	queue chan alert

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier creates a Notifier that will deliver to the given senders.
// Repeats of an event within cooldown are dropped.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notifier")),
		now:      time.Now,
		queue:    make(chan alert, 32),
		lastSent: make(map[string]time.Time),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Alert queues an alert. It never blocks; alerts that are filtered, inside
// their cooldown, or that overflow the queue are dropped. It reports
// whether the alert was queued.
func (n *Notifier) Alert(event, title, message string) bool {
	if !n.Enabled() || (len(n.events) > 0 && !n.events[event]) {
		return false
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastSent[event]; ok && n.cooldown > 0 && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		n.logger.Debug("alert in cooldown", slog.String("event", event))
		return false
	}
	n.lastSent[event] = now
	n.mu.Unlock()

	select {
	case n.queue <- alert{event: event, title: title, message: message}:
		return true
	default:
		n.logger.Warn("alert queue full", slog.String("event", event))
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := n.dispatch(sendCtx, a.title, a.message); err != nil {
				n.logger.Warn("alert delivery failed",
					slog.String("event", a.event),
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FeedStateAlerter turns connection state changes into alerts. The first
// connect is not reported; after a drop, the next connect reports how long
// the feed was down.
func (n *Notifier) FeedStateAlerter(coin func() string) func(connected bool) {
	var (
		mu       sync.Mutex
		seenUp   bool
		downedAt time.Time
	)
	return func(connected bool) {
		mu.Lock()
		defer mu.Unlock()

		if connected {
			if seenUp && !downedAt.IsZero() {
				n.Alert(EventFeedUp, "Feed recovered",
					fmt.Sprintf("%s feed reconnected after %s", coin(), n.now().Sub(downedAt).Round(time.Second)))
			}
			seenUp = true
			downedAt = time.Time{}
			return
		}
		if downedAt.IsZero() {
			downedAt = n.now()
			n.Alert(EventFeedDown, "Feed disconnected",
				fmt.Sprintf("%s feed lost its connection; reconnecting", coin()))
		}
	}
}
