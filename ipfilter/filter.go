// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"fmt"
	"net/netip"
)

// Filter is an admission policy over both IP address families. It
// keeps one [*Table] per family and dispatches rules and lookups on
// the family of the addresses involved.
//
// The zero value is invalid; construct using [New].
type Filter struct {
	// v4 stores the IPv4 ranges.
	v4 *Table

	// v6 stores the IPv6 ranges.
	v6 *Table
}

// New creates an empty [*Filter] admitting every address.
func New() *Filter {
	return &Filter{
		v4: NewTable(FamilyIPv4),
		v6: NewTable(FamilyIPv6),
	}
}

// AddRule classifies every address in the closed range [low, high]
// as action, dispatching on the bounds' address family. IPv4-mapped
// IPv6 bounds count as IPv4. The method returns [ErrInvalidRange]
// when the bounds are invalid or not in ascending order, and
// [ErrFamilyMismatch] when they belong to different families.
func (f *Filter) AddRule(low, high netip.Addr, action Action) error {
	low, high = low.Unmap(), high.Unmap()
	switch {
	case !low.IsValid() || !high.IsValid():
		return fmt.Errorf("%w: %s-%s", ErrInvalidRange, low, high)
	case low.Is4() && high.Is4():
		return f.v4.AddRule(low, high, action)
	case !low.Is4() && !high.Is4():
		return f.v6.AddRule(low, high, action)
	default:
		return fmt.Errorf("%w: %s-%s", ErrFamilyMismatch, low, high)
	}
}

// AddCIDR classifies every address inside the given prefix, for
// example "60.0.0.0/30" or "2001:db8::/32", as action.
func (f *Filter) AddCIDR(cidr string, action Action) error {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRange, err.Error())
	}
	prefix = prefix.Masked()
	return f.AddRule(prefix.Addr(), prefixLast(prefix), action)
}

// prefixLast returns the last address inside the prefix, which the
// caller guarantees to be masked.
func prefixLast(prefix netip.Prefix) netip.Addr {
	if addr := prefix.Addr(); addr.Is4() {
		buf := addr.As4()
		setHostBits(buf[:], prefix.Bits())
		return netip.AddrFrom4(buf)
	}
	buf := prefix.Addr().As16()
	setHostBits(buf[:], prefix.Bits())
	return netip.AddrFrom16(buf)
}

// setHostBits sets every bit of buf after the first bits ones.
func setHostBits(buf []byte, bits int) {
	for idx := bits; idx < len(buf)*8; idx++ {
		buf[idx/8] |= 1 << (7 - idx%8)
	}
}

// Lookup returns the classification of addr. IPv4-mapped IPv6
// addresses are unmapped first. Invalid addresses are [Allow].
func (f *Filter) Lookup(addr netip.Addr) Action {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return Allow
	case addr.Is4():
		return f.v4.Lookup(addr)
	default:
		return f.v6.Lookup(addr)
	}
}

// IsBlocked reports whether the policy refuses addr.
func (f *Filter) IsBlocked(addr netip.Addr) bool {
	return f.Lookup(addr) == Blocked
}

// Len returns the total number of stored ranges across families.
func (f *Filter) Len() int {
	return f.v4.Len() + f.v6.Len()
}

// Rules returns the stored ranges of the given family in ascending
// order.
func (f *Filter) Rules(family Family) []Rule {
	switch family {
	case FamilyIPv6:
		return f.v6.Rules()
	default:
		return f.v4.Rules()
	}
}

// Clone returns a copy of the filter sharing storage with the
// original copy-on-write. Adding rules to either filter does not
// affect the other, and reading one filter is safe while the other
// is being mutated, so a clone works as an immutable snapshot.
func (f *Filter) Clone() *Filter {
	return &Filter{v4: f.v4.Clone(), v6: f.v6.Clone()}
}
