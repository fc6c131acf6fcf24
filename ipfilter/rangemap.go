// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import "github.com/google/btree"

// btreeDegree is the branching factor of the trees storing ranges.
const btreeDegree = 32

// entry is a single stored range with its classification. The
// bounds are inclusive: the entry covers the closed interval
// [lo, hi].
type entry[K comparable] struct {
	lo, hi K
	action Action
}

// rangeMap is an ordered collection of non-overlapping, maximally
// merged entries keyed by range start. It is generic over the key
// type so that the same algebra serves IP addresses and ports.
type rangeMap[K comparable] struct {
	// cmp compares two keys like [netip.Addr.Compare].
	cmp func(a, b K) int

	// succ returns the key after k, reporting false at the top of
	// the key space.
	succ func(k K) (K, bool)

	// pred returns the key before k, reporting false at the bottom
	// of the key space.
	pred func(k K) (K, bool)

	// tree stores the entries sorted by their lo key.
	tree *btree.BTreeG[entry[K]]
}

// newRangeMap creates an empty [*rangeMap] using the given key
// comparison, successor, and predecessor operations.
func newRangeMap[K comparable](
	cmp func(a, b K) int,
	succ func(k K) (K, bool),
	pred func(k K) (K, bool),
) *rangeMap[K] {
	return &rangeMap[K]{
		cmp:  cmp,
		succ: succ,
		pred: pred,
		tree: btree.NewG(btreeDegree, func(a, b entry[K]) bool {
			return cmp(a.lo, b.lo) < 0
		}),
	}
}

// add classifies every key in [lo, hi] as action. Stored entries
// fully inside the new range are removed, entries extending beyond
// either side are truncated and keep their original classification,
// and contiguous neighbors with the same classification are merged
// into the new entry. The caller guarantees lo <= hi.
func (rm *rangeMap[K]) add(lo, hi K, action Action) {
	// Collect the stored entries overlapping [lo, hi], starting
	// from the rightmost entry beginning at or before lo.
	pivot := entry[K]{lo: lo}
	if e, ok := rm.floor(lo); ok {
		pivot = e
	}
	var overlap []entry[K]
	rm.tree.AscendGreaterOrEqual(pivot, func(e entry[K]) bool {
		if rm.cmp(e.lo, hi) > 0 {
			return false
		}
		if rm.cmp(e.hi, lo) >= 0 {
			overlap = append(overlap, e)
		}
		return true
	})

	// Remove them, then reinsert the pieces extending beyond either
	// side of [lo, hi] under their original classification.
	for _, e := range overlap {
		rm.tree.Delete(e)
	}
	for _, e := range overlap {
		if rm.cmp(e.lo, lo) < 0 {
			cut, _ := rm.pred(lo)
			rm.tree.ReplaceOrInsert(entry[K]{lo: e.lo, hi: cut, action: e.action})
		}
		if rm.cmp(e.hi, hi) > 0 {
			cut, _ := rm.succ(hi)
			rm.tree.ReplaceOrInsert(entry[K]{lo: cut, hi: e.hi, action: e.action})
		}
	}

	// Extend [lo, hi] over contiguous neighbors holding the same
	// classification, keeping the stored entries maximally merged.
	if left, ok := rm.floor(lo); ok && left.action == action {
		if next, ok := rm.succ(left.hi); ok && rm.cmp(next, lo) == 0 {
			rm.tree.Delete(left)
			lo = left.lo
		}
	}
	if right, ok := rm.ceiling(hi); ok && right.action == action {
		if next, ok := rm.succ(hi); ok && rm.cmp(next, right.lo) == 0 {
			rm.tree.Delete(right)
			hi = right.hi
		}
	}

	rm.tree.ReplaceOrInsert(entry[K]{lo: lo, hi: hi, action: action})
}

// lookup returns the classification of k, defaulting to [Allow]
// when no stored entry contains it.
func (rm *rangeMap[K]) lookup(k K) Action {
	if e, ok := rm.floor(k); ok && rm.cmp(k, e.hi) <= 0 {
		return e.action
	}
	return Allow
}

// floor returns the last entry whose lo key is at or before k.
func (rm *rangeMap[K]) floor(k K) (entry[K], bool) {
	var (
		out   entry[K]
		found bool
	)
	rm.tree.DescendLessOrEqual(entry[K]{lo: k}, func(e entry[K]) bool {
		out, found = e, true
		return false
	})
	return out, found
}

// ceiling returns the first entry whose lo key is at or after k.
func (rm *rangeMap[K]) ceiling(k K) (entry[K], bool) {
	var (
		out   entry[K]
		found bool
	)
	rm.tree.AscendGreaterOrEqual(entry[K]{lo: k}, func(e entry[K]) bool {
		out, found = e, true
		return false
	})
	return out, found
}

// entries returns the stored entries in ascending key order.
func (rm *rangeMap[K]) entries() []entry[K] {
	out := make([]entry[K], 0, rm.tree.Len())
	rm.tree.Ascend(func(e entry[K]) bool {
		out = append(out, e)
		return true
	})
	return out
}

// len returns the number of stored entries.
func (rm *rangeMap[K]) len() int {
	return rm.tree.Len()
}

// clone returns a copy of the map sharing storage with the original
// copy-on-write. Writes to either map do not affect the other, and
// reading one map is safe while the other is being written.
func (rm *rangeMap[K]) clone() *rangeMap[K] {
	return &rangeMap[K]{
		cmp:  rm.cmp,
		succ: rm.succ,
		pred: rm.pred,
		tree: rm.tree.Clone(),
	}
}
