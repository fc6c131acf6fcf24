// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"fmt"
	"net/netip"
)

// Table stores non-overlapping, maximally merged address ranges of
// a single family, each classified by an [Action].
//
// Lookups are logarithmic in the number of stored ranges. A [*Table]
// supports concurrent readers, while mutating it concurrently with
// reads requires external synchronization; use [*Table.Clone] to
// hand out immutable snapshots instead.
//
// The zero value is invalid; construct using [NewTable].
type Table struct {
	// family is the address family of every stored range.
	family Family

	// rm implements the range algebra.
	rm *rangeMap[netip.Addr]
}

// NewTable creates an empty [*Table] for the given family.
func NewTable(family Family) *Table {
	return &Table{
		family: family,
		rm:     newRangeMap(netip.Addr.Compare, addrSucc, addrPred),
	}
}

// addrSucc returns the address after a, reporting false at the top
// of the address space.
func addrSucc(a netip.Addr) (netip.Addr, bool) {
	next := a.Next()
	return next, next.IsValid()
}

// addrPred returns the address before a, reporting false at the
// bottom of the address space.
func addrPred(a netip.Addr) (netip.Addr, bool) {
	prev := a.Prev()
	return prev, prev.IsValid()
}

// Family returns the table's address family.
func (t *Table) Family() Family {
	return t.family
}

// AddRule classifies every address in the closed range [low, high]
// as action, overriding any previous classification of addresses in
// the range. Previously stored ranges extending beyond either bound
// are truncated and keep their classification, and contiguous
// ranges with equal classification are merged.
//
// IPv4-mapped IPv6 bounds are unmapped before insertion. The method
// returns [ErrInvalidRange] when the bounds are invalid or not in
// ascending order, and [ErrFamilyMismatch] when they do not belong
// to the table's family.
func (t *Table) AddRule(low, high netip.Addr, action Action) error {
	low, high = low.Unmap(), high.Unmap()
	if !low.IsValid() || !high.IsValid() || low.Compare(high) > 0 {
		return fmt.Errorf("%w: %s-%s", ErrInvalidRange, low, high)
	}
	if !t.family.contains(low) || !t.family.contains(high) {
		return fmt.Errorf("%w: %s-%s is not %s", ErrFamilyMismatch, low, high, t.family)
	}
	t.rm.add(low, high, action)
	return nil
}

// Lookup returns the classification of addr. Addresses outside any
// stored range, of the wrong family, or invalid are [Allow].
func (t *Table) Lookup(addr netip.Addr) Action {
	addr = addr.Unmap()
	if !t.family.contains(addr) {
		return Allow
	}
	return t.rm.lookup(addr)
}

// Len returns the number of stored ranges.
func (t *Table) Len() int {
	return t.rm.len()
}

// Rules returns the stored ranges in ascending order.
func (t *Table) Rules() []Rule {
	entries := t.rm.entries()
	out := make([]Rule, 0, len(entries))
	for _, e := range entries {
		out = append(out, Rule{Low: e.lo, High: e.hi, Action: e.action})
	}
	return out
}

// Clone returns a copy of the table sharing storage with the
// original copy-on-write. Adding rules to either table does not
// affect the other, and reading one table is safe while the other
// is being mutated.
func (t *Table) Clone() *Table {
	return &Table{family: t.family, rm: t.rm.clone()}
}
