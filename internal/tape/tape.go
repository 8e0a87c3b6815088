// Package tape keeps a bounded, newest-first buffer of public trades.
package tape

import (
	"slices"
	"sync"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// DefaultMax is the number of trades retained.
const DefaultMax = 50

// Append prepends incoming to existing, stable-sorts by time descending and
// truncates to max. Trades with a non-positive price or size are dropped.
// Within the same timestamp the newer batch comes first.
func Append(existing, incoming []domain.Trade, max int) []domain.Trade {
	if max <= 0 {
		max = DefaultMax
	}

	out := make([]domain.Trade, 0, len(incoming)+len(existing))
	for _, tr := range incoming {
		if tr.Valid() {
			out = append(out, tr)
		}
	}
	out = append(out, existing...)

	slices.SortStableFunc(out, func(a, b domain.Trade) int {
		return b.Time.Compare(a.Time)
	})

	if len(out) > max {
		out = out[:max]
	}
	return out
}

// Tape is a concurrency-safe holder of the trades of one coin.
type Tape struct {
	mu     sync.RWMutex
	coin   string
	max    int
	trades []domain.Trade
}

// New returns an empty tape for coin that retains max trades.
func New(coin string, max int) *Tape {
	if max <= 0 {
		max = DefaultMax
	}
	return &Tape{coin: coin, max: max}
}

// Push appends a batch and returns the number of trades accepted. Batches
// for another coin are ignored.
func (t *Tape) Push(batch []domain.Trade) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	accepted := make([]domain.Trade, 0, len(batch))
	for _, tr := range batch {
		if tr.Coin == t.coin && tr.Valid() {
			accepted = append(accepted, tr)
		}
	}
	if len(accepted) == 0 {
		return 0
	}
	t.trades = Append(t.trades, accepted, t.max)
	return len(accepted)
}

// Trades returns a copy of the tape, newest first.
func (t *Tape) Trades() []domain.Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Coin returns the coin the tape is bound to.
func (t *Tape) Coin() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.coin
}

// Reset clears the tape and rebinds it to coin.
func (t *Tape) Reset(coin string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coin = coin
	t.trades = nil
}
