// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides a simple network simulation framework
that developers can use to write integration tests.

# Usage and Features

The [NewStack] function creates a new, simulated network stack
using given IP addresses. You can invoke usual functions on the
stack, such as:

- DialContext
- Listen
- ListenPacket

These functions return simulated [net.Conn], [net.Listener], and
[net.PacketConn] respectively.

When a connection sends data, the data is wrapped inside a [*Packet]
emitted on the channel returned by [*Stack.Output]. The [*Link]
type allows connecting two [*Stack] such that they can send [*Packet]
to each other. To send a [*Packet] to a [*Stack], you need to post
the packet on the channel returned by [*Stack.Input]. You don't need
to use a [*Link] as long as you correctly forward packets.

The [*Scenario] type builds on top of this model and arranges stacks
in a star topology around a central [router.Router]. The scenario owns
a DNS database mapping domain names to stack addresses, and provides
constructors for the well-known hosts we use when testing BitTorrent
code: a resolver ([*Scenario.MustNewDNSStack]), an HTTP tracker
reachable over IPv4 and IPv6 ([*Scenario.MustNewTrackerStack]), peers
([*Scenario.MustNewPeerStack]), and a dual-stack client
([*Scenario.MustNewClientStack]).

The actual implementation lives in subpackages: [netsim/packet]
defines packets and network devices, [netsim/netstack] implements
the userspace TCP/UDP stack, [netsim/link] and [netsim/router]
move packets around, [netsim/dns] implements the DNS database, and
[netsim/censor] provides packet filters modeling network interference
(blackholing, connection reset, DNS poisoning). This package aliases
the most commonly used types so that simple simulations only need a
single import.

The errors returned by the simulated connections are the same
[syscall.Errno] the standard library and the kernel would generate
in similar cases (we use the [x/sys] repository to pull
system-dependent error values).

This package contains comprehensive examples showing how to use it.

# Design Documents

This package is experimental and has no design documents for now.
*/
package netsim
