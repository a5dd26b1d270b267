package card

import (
	"sort"

	"github.com/crsh/server/internal/game/rng"
)

// weightedIndex draws an index in [0, len(weights)) with probability
// proportional to its weight, using cumulative sums and binary search.
// Zero-weight entries are never chosen.
//
// Postcondition: Returns (index, true) with weights[index] > 0, or
// (0, false) when every weight is zero or the slice is empty.
func weightedIndex(src rng.Source, weights []int) (int, bool) {
	cumulative := make([]int, len(weights))
	total := 0
	for i, w := range weights {
		total += w
		cumulative[i] = total
	}
	if total <= 0 {
		return 0, false
	}

	// pick is in [1, total]; the first cumulative >= pick is the winner.
	pick := src.Intn(total) + 1
	idx := sort.SearchInts(cumulative, pick)
	return idx, true
}
