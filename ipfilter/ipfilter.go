// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"errors"
	"net/netip"
)

// Action classifies the addresses covered by a [Rule].
type Action uint8

const (
	// Allow admits matching addresses. It is the zero value and
	// the implicit classification of addresses that no stored
	// range covers.
	Allow = Action(iota)

	// Blocked refuses matching addresses.
	Blocked
)

// String returns the classification name.
func (a Action) String() string {
	switch a {
	case Blocked:
		return "blocked"
	default:
		return "allow"
	}
}

// Family identifies an IP address family.
type Family uint8

const (
	// FamilyIPv4 is the 32-bit IPv4 address space.
	FamilyIPv4 = Family(iota)

	// FamilyIPv6 is the 128-bit IPv6 address space.
	FamilyIPv6
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyIPv6:
		return "ipv6"
	default:
		return "ipv4"
	}
}

// contains reports whether addr belongs to the family. IPv4-mapped
// IPv6 addresses belong to the IPv4 family.
func (f Family) contains(addr netip.Addr) bool {
	switch f {
	case FamilyIPv6:
		return addr.Is6() && !addr.Is4In6()
	default:
		return addr.Is4() || addr.Is4In6()
	}
}

// Rule is a single classified address range. The bounds are
// inclusive: the rule covers the closed interval [Low, High].
type Rule struct {
	// Low is the first address of the range.
	Low netip.Addr

	// High is the last address of the range.
	High netip.Addr

	// Action is the classification of every address in the range.
	Action Action
}

// ErrInvalidRange indicates that a range's bounds are invalid
// addresses or are not in ascending order.
var ErrInvalidRange = errors.New("invalid address range")

// ErrFamilyMismatch indicates that a range's bounds belong to
// different address families, or to a different family than the
// table they were added to.
var ErrFamilyMismatch = errors.New("address family mismatch")
