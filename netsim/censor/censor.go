// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"bytes"
	"net/netip"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// trigger groups the matching rules shared by filters that censor
// traffic selectively: an optional destination endpoint and an
// optional payload pattern.
type trigger struct {
	// endpoint optionally restricts matching to packets directed
	// to a specific endpoint; if zero, any endpoint matches.
	endpoint netip.AddrPort

	// pattern optionally restricts matching to packets whose
	// payload contains the given bytes; if empty, any packet matches.
	pattern []byte
}

// matches reports whether pkt matches the trigger.
//
// Packets with an empty payload never match a non-empty pattern,
// which lets TCP handshakes complete before the censor fires.
func (tr *trigger) matches(pkt *packet.Packet) bool {
	if tr.endpoint.IsValid() &&
		(pkt.DstAddr != tr.endpoint.Addr() || pkt.DstPort != tr.endpoint.Port()) {
		return false
	}
	if len(tr.pattern) > 0 &&
		(len(pkt.Payload) <= 0 || !bytes.Contains(pkt.Payload, tr.pattern)) {
		return false
	}
	return true
}

// fiveTuple identifies a flow in either direction.
type fiveTuple struct {
	proto   packet.IPProtocol
	srcAddr netip.Addr
	srcPort uint16
	dstAddr netip.Addr
	dstPort uint16
}

// flowOf returns the [fiveTuple] identifying the pkt flow.
func flowOf(pkt *packet.Packet) fiveTuple {
	return fiveTuple{
		proto:   pkt.IPProtocol,
		srcAddr: pkt.SrcAddr,
		srcPort: pkt.SrcPort,
		dstAddr: pkt.DstAddr,
		dstPort: pkt.DstPort,
	}
}

// spoofedReply returns a packet that appears to originate from the
// destination of pkt and is directed back at its source. The caller
// still needs to fill in protocol-specific fields such as the TCP
// flags or the payload.
func spoofedReply(pkt *packet.Packet) *packet.Packet {
	return &packet.Packet{
		TTL:        64,
		SrcAddr:    pkt.DstAddr,
		DstAddr:    pkt.SrcAddr,
		IPProtocol: pkt.IPProtocol,
		SrcPort:    pkt.DstPort,
		DstPort:    pkt.SrcPort,
	}
}
