// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"cmp"
	"fmt"
	"math"
)

// PortTable applies the range algebra to 16-bit TCP/UDP port
// numbers, classifying every port as [Allow] or [Blocked].
//
// Like [*Table], a [*PortTable] supports concurrent readers, and
// [*PortTable.Clone] hands out immutable snapshots.
//
// The zero value is invalid; construct using [NewPortTable].
type PortTable struct {
	// rm implements the range algebra.
	rm *rangeMap[uint16]
}

// NewPortTable creates an empty [*PortTable] admitting every port.
func NewPortTable() *PortTable {
	return &PortTable{
		rm: newRangeMap(cmp.Compare[uint16], portSucc, portPred),
	}
}

// portSucc returns the port after p, reporting false at the top of
// the port space.
func portSucc(p uint16) (uint16, bool) {
	if p == math.MaxUint16 {
		return 0, false
	}
	return p + 1, true
}

// portPred returns the port before p, reporting false at the bottom
// of the port space.
func portPred(p uint16) (uint16, bool) {
	if p == 0 {
		return 0, false
	}
	return p - 1, true
}

// AddRule classifies every port in the closed range [low, high] as
// action, overriding any previous classification. The method
// returns [ErrInvalidRange] when low > high.
func (t *PortTable) AddRule(low, high uint16, action Action) error {
	if low > high {
		return fmt.Errorf("%w: %d-%d", ErrInvalidRange, low, high)
	}
	t.rm.add(low, high, action)
	return nil
}

// Lookup returns the classification of port, defaulting to [Allow]
// when no stored range contains it.
func (t *PortTable) Lookup(port uint16) Action {
	return t.rm.lookup(port)
}

// IsBlocked reports whether the table refuses port.
func (t *PortTable) IsBlocked(port uint16) bool {
	return t.Lookup(port) == Blocked
}

// Len returns the number of stored ranges.
func (t *PortTable) Len() int {
	return t.rm.len()
}

// Clone returns a copy of the table sharing storage with the
// original copy-on-write.
func (t *PortTable) Clone() *PortTable {
	return &PortTable{rm: t.rm.clone()}
}
