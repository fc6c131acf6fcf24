// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"github.com/miekg/dns"
	netsimdns "github.com/rbmk-project/btcore/netsim/dns"
	"github.com/rbmk-project/btcore/netsim/packet"
)

// Database is an alias for [netsimdns.Database].
type Database = netsimdns.Database

// DNSPoisoner implements GFW-style DNS poisoning.
//
// The poisoner watches DNS-over-UDP queries and races a spoofed
// response ahead of the legitimate one for each name present in
// its database. The original query is allowed to continue, so the
// client may observe multiple responses for a censored query.
type DNSPoisoner struct {
	// db contains the poisoned records to inject.
	db *Database
}

// NewDNSPoisoner creates a new [*DNSPoisoner] that injects
// responses as configured in the given database.
func NewDNSPoisoner(db *Database) *DNSPoisoner {
	return &DNSPoisoner{db: db}
}

// Filter implements [packet.Filter].
func (p *DNSPoisoner) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	// Only process UDP packets directed to a DNS server
	if pkt.IPProtocol != packet.IPProtocolUDP || pkt.DstPort != 53 {
		return packet.ACCEPT, nil
	}

	// Only process parseable, single-question queries
	query := new(dns.Msg)
	if err := query.Unpack(pkt.Payload); err != nil {
		return packet.ACCEPT, nil
	}
	if query.Response || len(query.Question) != 1 {
		return packet.ACCEPT, nil
	}

	// Let the original query continue and inject the spoofed
	// response, if any, ahead of the legitimate one.
	return packet.ACCEPT, p.spoof(pkt, query)
}

// spoof returns the spoofed response packets for the given query,
// or an empty slice when the database contains no matching records.
func (p *DNSPoisoner) spoof(pkt *packet.Packet, query *dns.Msg) []*packet.Packet {
	// Get records from the database
	q0 := query.Question[0]
	rrs, found := p.db.Lookup(q0.Qtype, q0.Name)
	if !found {
		return nil
	}

	// Prepare and pack the response
	resp := &dns.Msg{}
	resp.SetReply(query)
	resp.Answer = rrs
	payload, err := resp.Pack()
	if err != nil {
		return nil
	}

	// Create the spoofed packet
	spoofed := spoofedReply(pkt)
	spoofed.Payload = payload
	return []*packet.Packet{spoofed}
}
