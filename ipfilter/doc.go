// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package ipfilter implements IP-range admission policies.

A [*Filter] classifies IP addresses as [Allow] or [Blocked] using
one [*Table] of non-overlapping address ranges per address family.
A [*PortTable] applies the same range algebra to TCP/UDP ports.

# Features

- closed ranges [low, high] with allow/blocked classification;

- rule insertion that truncates, replaces, and merges stored
ranges so that the table is always maximally merged;

- logarithmic-time point lookups, with allow as the implicit
classification of addresses no stored range covers;

- cheap copy-on-write snapshots via Clone, so a policy can be
installed into a session and queried without locks while the
original keeps accepting new rules;

- a [Load] helper ingesting blocklists in CIDR text form.

# Usage

Create a [*Filter], add rules, and install it:

	filter := ipfilter.New()
	err := filter.AddRule(
		netip.MustParseAddr("60.0.0.0"),
		netip.MustParseAddr("60.0.0.2"),
		ipfilter.Blocked,
	)

Un-blocking a sub-range is just another rule: adding an [Allow]
rule over part of a blocked range truncates the blocked range and
keeps the remainder blocked. There is no delete operation.

# Design Documents

This package is experimental and has no design documents for now.
*/
package ipfilter
