// Package book reconciles full-depth order book snapshots into sorted,
// depth-limited price ladders with cumulative totals.
package book

import (
	"slices"
	"sort"

	"github.com/alanyoungcy/perpdepth/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultDepth is the number of levels kept per side.
const DefaultDepth = 11

// Ladder is one side of a book. Asks are ascending by price, bids
// descending, and Total is non-decreasing walking away from the best price.
type Ladder struct {
	Side   domain.BookSide
	Levels []domain.BookLevel
}

// NewLadder returns an empty ladder for side.
func NewLadder(side domain.BookSide) Ladder {
	return Ladder{Side: side}
}

// Best returns the best level of the ladder.
func (l Ladder) Best() (domain.BookLevel, bool) {
	if len(l.Levels) == 0 {
		return domain.BookLevel{}, false
	}
	return l.Levels[0], true
}

// Clone returns a deep copy safe to hand to readers.
func (l Ladder) Clone() Ladder {
	levels := make([]domain.BookLevel, len(l.Levels))
	copy(levels, l.Levels)
	return Ladder{Side: l.Side, Levels: levels}
}

// ChangeSet is the set of price keys whose size was added or changed by a
// merge.
type ChangeSet map[string]struct{}

// PriceKey is the canonical key of a price in a ChangeSet.
func PriceKey(p decimal.Decimal) string {
	return p.String()
}

// Union adds every key of other to c.
func (c ChangeSet) Union(other ChangeSet) {
	for k := range other {
		c[k] = struct{}{}
	}
}

// Retain drops every key whose price is no longer a level of any of the
// ladders.
func (c ChangeSet) Retain(ladders ...Ladder) {
	live := make(map[string]struct{})
	for _, l := range ladders {
		for _, lv := range l.Levels {
			live[PriceKey(lv.Price)] = struct{}{}
		}
	}
	for k := range c {
		if _, ok := live[k]; !ok {
			delete(c, k)
		}
	}
}

// Keys returns the keys in lexical order.
func (c ChangeSet) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge folds a full-depth snapshot of one side into prev and returns the
// new ladder with the set of prices whose size was added or changed.
//
// Levels of prev that are missing from the snapshot are dropped. Malformed
// entries (non-positive price, negative size) and zero-size entries are
// treated as absent. When a price repeats inside the snapshot the last
// entry wins. Only prices that survive truncation to depth are reported as
// changed, so merging the same snapshot twice yields an empty second set.
func Merge(prev Ladder, snapshot []domain.PriceLevel, depth int) (Ladder, ChangeSet) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	incoming := make(map[string]domain.PriceLevel, len(snapshot))
	arrival := make([]string, 0, len(snapshot))
	for _, lvl := range snapshot {
		if !lvl.Valid() || lvl.Size.IsZero() {
			continue
		}
		k := PriceKey(lvl.Price)
		if _, seen := incoming[k]; !seen {
			arrival = append(arrival, k)
		}
		incoming[k] = lvl
	}

	candidates := make(map[string]struct{})
	levels := make([]domain.BookLevel, 0, len(incoming))

	for _, old := range prev.Levels {
		k := PriceKey(old.Price)
		in, ok := incoming[k]
		if !ok {
			continue
		}
		if !in.Size.Equal(old.Size) {
			candidates[k] = struct{}{}
		}
		levels = append(levels, domain.BookLevel{Price: old.Price, Size: in.Size, Orders: in.Orders})
		delete(incoming, k)
	}

	for _, k := range arrival {
		in, ok := incoming[k]
		if !ok {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: in.Price, Size: in.Size, Orders: in.Orders})
		candidates[k] = struct{}{}
	}

	sortLevels(prev.Side, levels)
	accumulate(levels)
	if len(levels) > depth {
		levels = levels[:depth]
	}

	changed := make(ChangeSet, len(candidates))
	for _, lvl := range levels {
		k := PriceKey(lvl.Price)
		if _, ok := candidates[k]; ok {
			changed[k] = struct{}{}
		}
	}

	return Ladder{Side: prev.Side, Levels: levels}, changed
}

// sortLevels orders asks ascending and bids descending.
func sortLevels(side domain.BookSide, levels []domain.BookLevel) {
	slices.SortFunc(levels, func(a, b domain.BookLevel) int {
		if side == domain.BookSideBid {
			return b.Price.Cmp(a.Price)
		}
		return a.Price.Cmp(b.Price)
	})
}

// accumulate fills Total with the running size from the best price outward.
func accumulate(levels []domain.BookLevel) {
	running := decimal.Zero
	for i := range levels {
		running = running.Add(levels[i].Size)
		levels[i].Total = running
	}
}
