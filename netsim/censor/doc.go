// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package censor implements common internet censorship techniques for testing.

All filters implement the [packet.Filter] interface and can be installed
on a [router.Router] to model interference along the path. We use them to
contrast endpoint-level admission control, where the client itself refuses
to talk to given addresses, with network-level interference, where a
middlebox disrupts traffic the client would otherwise exchange.

# DNS Response Injection

The [*DNSPoisoner] type implements GFW-style DNS poisoning by injecting
spoofed responses. It is based on a database of poisoned records to
inject. Legitimate responses are allowed to pass through, thus the client
is expected to receive multiple responses for each censored query.

# TCP Reset Injection

The [*TCPResetter] type implements RST-based connection disruption. It can
match on specific payload patterns (e.g., the path of an HTTP announce)
while allowing TCP handshakes to complete, modeling how real censors
selectively terminate connections based on application layer content.
Combining pattern matching and endpoint matching allows for modeling
content+endpoint based blocking, which is another common censorship case.

# Connection Blackholing

The [*Blackholer] type implements connection blackholing with optional
pattern matching. Once triggered, it blocks all packets for the matching
flow for a configurable duration. This models censors that completely
block specific traffic patterns or endpoints, causing timeouts. Because
the filter remembers the blocked five tuples, it also causes residual
censorship effects.

# Destination NAT

The [*DNatter] type implements transparent proxying through destination
NAT (DNAT): it redirects traffic from specific sources to alternative
destinations while maintaining proper connection tracking. This models
middleboxes that silently steer traffic to warning pages, surveillance
systems, or rogue servers.
*/
package censor
