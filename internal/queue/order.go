package queue

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// OrderType selects a reordering strategy.
type OrderType string

// Supported order types.
const (
	Watch    OrderType = "watch"    // unplayed items, or everything when all are played
	Played   OrderType = "played"   // only played items
	Unplayed OrderType = "unplayed" // only unplayed items
	Continue OrderType = "continue" // partially played items first
	Shuffle  OrderType = "shuffle"
	Ordered  OrderType = "ordered" // input order unchanged
	Newest   OrderType = "newest"
	Oldest   OrderType = "oldest"
	Shortest OrderType = "shortest"
	Longest  OrderType = "longest"
)

// strategy returns the indices of keys to keep, in their new order.
type strategy func(keys []Sortable, rng *rand.Rand) []int

var strategies = map[OrderType]strategy{
	Watch:    orderWatch,
	Played:   filterPlayed(true),
	Unplayed: filterPlayed(false),
	Continue: orderContinue,
	Shuffle:  orderShuffle,
	Ordered:  identity,
	Newest: stableBy(func(a, b Sortable) int {
		return b.Timestamp().Compare(a.Timestamp())
	}),
	Oldest: stableBy(func(a, b Sortable) int {
		return a.Timestamp().Compare(b.Timestamp())
	}),
	Shortest: stableBy(func(a, b Sortable) int {
		return cmp.Compare(a.Duration(), b.Duration())
	}),
	Longest: stableBy(func(a, b Sortable) int {
		return cmp.Compare(b.Duration(), a.Duration())
	}),
}

// ParseOrderType maps a case-insensitive name to an OrderType.
// An empty or blank name means Ordered.
func ParseOrderType(s string) (OrderType, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return Ordered, nil
	}
	ot := OrderType(strings.ToLower(name))
	if !ot.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOrder, s)
	}
	return ot, nil
}

// Valid reports whether ot has a strategy.
func (ot OrderType) Valid() bool {
	_, ok := strategies[ot]
	return ok
}

// OrderTypes lists every supported order type in a fixed order.
func OrderTypes() []OrderType {
	return []OrderType{Watch, Played, Unplayed, Continue, Shuffle, Ordered, Newest, Oldest, Shortest, Longest}
}

// Order returns a reordered (and for filtering strategies, reduced) copy
// of items. The input slice is not modified. rng is only consulted by
// Shuffle; a nil rng falls back to the package-level source.
func Order[T Sortable](items []T, ot OrderType, rng *rand.Rand) ([]T, error) {
	fn, ok := strategies[ot]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrder, ot)
	}

	keys := make([]Sortable, len(items))
	for i, it := range items {
		keys[i] = it
	}

	idx := fn(keys, rng)
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out, nil
}

func identity(keys []Sortable, _ *rand.Rand) []int {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func filterPlayed(played bool) strategy {
	return func(keys []Sortable, _ *rand.Rand) []int {
		var idx []int
		for i, k := range keys {
			if k.IsPlayed() == played {
				idx = append(idx, i)
			}
		}
		return idx
	}
}

func orderWatch(keys []Sortable, rng *rand.Rand) []int {
	if idx := filterPlayed(false)(keys, rng); len(idx) > 0 {
		return idx
	}
	return identity(keys, rng)
}

func orderContinue(keys []Sortable, _ *rand.Rand) []int {
	idx := make([]int, 0, len(keys))
	var rest []int
	for i, k := range keys {
		if r := k.PlayedRatio(); !k.IsPlayed() && r > 0 && r < 1 {
			idx = append(idx, i)
		} else {
			rest = append(rest, i)
		}
	}
	return append(idx, rest...)
}

func orderShuffle(keys []Sortable, rng *rand.Rand) []int {
	idx := identity(keys, rng)
	swap := func(i, j int) { idx[i], idx[j] = idx[j], idx[i] }
	if rng != nil {
		rng.Shuffle(len(idx), swap)
	} else {
		rand.Shuffle(len(idx), swap)
	}
	return idx
}

func stableBy(compare func(a, b Sortable) int) strategy {
	return func(keys []Sortable, rng *rand.Rand) []int {
		idx := identity(keys, rng)
		slices.SortStableFunc(idx, func(i, j int) int {
			return compare(keys[i], keys[j])
		})
		return idx
	}
}
