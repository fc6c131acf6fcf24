// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"net/netip"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// TCPResetter implements RST-based TCP connection interruption.
//
// When configured with a pattern, it only injects RST segments
// for packets containing that pattern, while allowing empty
// packets (e.g., SYN) to pass through. This enables matching on
// application-layer content (e.g., an HTTP request line) while
// allowing the TCP handshake to complete normally.
type TCPResetter struct {
	// trig specifies which packets trigger the RST injection.
	trig trigger
}

// NewTCPResetter creates a new [*TCPResetter].
//
// If target is zero, it applies to all TCP connections.
//
// If pattern is empty, it doesn't perform payload matching.
func NewTCPResetter(target netip.AddrPort, pattern []byte) *TCPResetter {
	return &TCPResetter{trig: trigger{endpoint: target, pattern: pattern}}
}

// Filter implements [packet.Filter].
func (r *TCPResetter) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	// Only process TCP packets
	if pkt.IPProtocol != packet.IPProtocolTCP {
		return packet.ACCEPT, nil
	}

	// Check whether this packet triggers the injection
	if !r.trig.matches(pkt) {
		return packet.ACCEPT, nil
	}

	// Inject a RST directed at the packet sender while letting
	// the original packet continue towards its destination.
	rst := spoofedReply(pkt)
	rst.Flags = packet.TCPFlagRST
	return packet.ACCEPT, []*packet.Packet{rst}
}
