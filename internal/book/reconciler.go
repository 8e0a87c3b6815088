package book

import (
	"sync"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// DefaultHighlightTTL is how long changed prices stay highlighted after the
// last snapshot that touched them.
const DefaultHighlightTTL = 1500 * time.Millisecond

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDepth sets the number of levels kept per side.
func WithDepth(depth int) Option {
	return func(r *Reconciler) {
		if depth > 0 {
			r.depth = depth
		}
	}
}

// WithHighlightTTL sets how long changed prices stay in the view.
func WithHighlightTTL(ttl time.Duration) Option {
	return func(r *Reconciler) {
		if ttl > 0 {
			r.highlightTTL = ttl
		}
	}
}

// Reconciler owns both ladders of exactly one subscription. Snapshots are
// applied in delivery order; the newest always wins. It is safe for
// concurrent use: the feed goroutine applies, readers take views.
type Reconciler struct {
	mu           sync.RWMutex
	sub          domain.Subscription
	depth        int
	highlightTTL time.Duration

	bids    Ladder
	asks    Ladder
	spread  domain.Spread
	changed ChangeSet
	updated time.Time
	seq     uint64

	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewReconciler returns an empty reconciler bound to sub.
func NewReconciler(sub domain.Subscription, opts ...Option) *Reconciler {
	r := &Reconciler{
		depth:        DefaultDepth,
		highlightTTL: DefaultHighlightTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resetLocked(sub)
	return r
}

// Subscription returns the subscription the reconciler is bound to.
func (r *Reconciler) Subscription() domain.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sub
}

// Apply merges snap into both ladders and returns the resulting view. The
// second result is false when the snapshot belongs to a different coin and
// was ignored.
func (r *Reconciler) Apply(snap domain.BookSnapshot) (domain.BookView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || snap.Coin != r.sub.Coin {
		return r.viewLocked(), false
	}

	var bidChanges, askChanges ChangeSet
	r.bids, bidChanges = Merge(r.bids, snap.Bids, r.depth)
	r.asks, askChanges = Merge(r.asks, snap.Asks, r.depth)
	r.spread = ComputeSpread(r.bids, r.asks)
	r.updated = snap.Time
	r.seq++

	// Changed only names prices still present in a ladder.
	r.changed.Retain(r.bids, r.asks)
	if len(bidChanges)+len(askChanges) > 0 {
		r.changed.Union(bidChanges)
		r.changed.Union(askChanges)
		r.armLocked()
	}

	return r.viewLocked(), true
}

// View returns the current view.
func (r *Reconciler) View() domain.BookView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewLocked()
}

// Ladders returns copies of the bid and ask ladders.
func (r *Reconciler) Ladders() (bids, asks Ladder) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bids.Clone(), r.asks.Clone()
}

// Reset discards all state and binds the reconciler to sub. A highlight
// timer that already fired for the previous subscription cannot clear the
// new subscription's highlights.
func (r *Reconciler) Reset(sub domain.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(sub)
}

// Close stops the pending highlight timer. Further snapshots are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	r.gen++
	r.closed = true
}

func (r *Reconciler) resetLocked(sub domain.Subscription) {
	r.stopTimerLocked()
	r.gen++
	r.sub = sub
	r.bids = NewLadder(domain.BookSideBid)
	r.asks = NewLadder(domain.BookSideAsk)
	r.spread = domain.Spread{}
	r.changed = ChangeSet{}
	r.updated = time.Time{}
	r.seq = 0
}

func (r *Reconciler) armLocked() {
	r.stopTimerLocked()
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.highlightTTL, func() { r.clearHighlights(gen) })
}

func (r *Reconciler) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) clearHighlights(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen {
		return
	}
	r.changed = ChangeSet{}
	r.timer = nil
}

func (r *Reconciler) viewLocked() domain.BookView {
	return domain.BookView{
		Coin:      r.sub.Coin,
		Precision: r.sub.Precision,
		Bids:      r.bids.Clone().Levels,
		Asks:      r.asks.Clone().Levels,
		Spread:    r.spread,
		Changed:   r.changed.Keys(),
		Time:      r.updated,
		Seq:       r.seq,
	}
}
