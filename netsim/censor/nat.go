// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"net/netip"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// DNatter implements transparent proxying via DNAT (Destination NAT).
type DNatter struct {
	// source is the source address to DNAT.
	source netip.Addr

	// target is the target destination endpoint to replace.
	target netip.AddrPort

	// repl is the replacement destination endpoint.
	repl netip.AddrPort
}

// NewDNatter creates a new [*DNatter] instance.
//
// Arguments:
//
// - source is the source address to DNAT;
//
// - target is the target destination endpoint to replace;
//
// - repl is the replacement destination endpoint.
//
// For example, with:
//
// - source = "50.0.0.1"
//
// - target = "10.0.0.2:8080"
//
// - repl = "10.0.0.66:8080"
//
// traffic from "50.0.0.1" to "10.0.0.2:8080" will be sent to
// "10.0.0.66:8080" instead, and return traffic from "10.0.0.66:8080"
// to "50.0.0.1" will seem to come from "10.0.0.2:8080".
func NewDNatter(source netip.Addr, target, repl netip.AddrPort) *DNatter {
	return &DNatter{
		source: source,
		target: target,
		repl:   repl,
	}
}

// Filter implements [packet.Filter].
func (d *DNatter) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	// forward match on the DNAT rule
	if pkt.SrcAddr == d.source &&
		pkt.DstAddr == d.target.Addr() && pkt.DstPort == d.target.Port() {
		pkt.DstAddr = d.repl.Addr()
		pkt.DstPort = d.repl.Port()
		return packet.ACCEPT, nil
	}

	// return path match on the DNAT rule
	if pkt.SrcAddr == d.repl.Addr() && pkt.SrcPort == d.repl.Port() &&
		pkt.DstAddr == d.source {
		pkt.SrcAddr = d.target.Addr()
		pkt.SrcPort = d.target.Port()
		return packet.ACCEPT, nil
	}

	// otherwise just accept the packet
	return packet.ACCEPT, nil
}
