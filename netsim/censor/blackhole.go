// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// Blackholer implements connection blackholing with optional pattern
// matching and connection tracking. Once a flow triggers the filter,
// all packets matching its five-tuple are dropped for the configured
// duration, modeling residual censorship.
type Blackholer struct {
	// duration specifies how long a blackholed flow remains blocked.
	duration time.Duration

	// trig specifies which packets trigger blackholing.
	trig trigger

	// mu protects access to flows.
	mu sync.Mutex

	// flows tracks blackholed flows along with their expiry time.
	flows map[fiveTuple]time.Time
}

// NewBlackholer creates a new [*Blackholer] instance.
//
// The duration parameter controls how long flows remain blackholed.
//
// If target is zero, the filter considers all flows. If pattern is
// empty, the filter doesn't perform payload matching, so even the
// initial SYN triggers blackholing and connecting times out.
func NewBlackholer(duration time.Duration, target netip.AddrPort, pattern []byte) *Blackholer {
	return &Blackholer{
		duration: duration,
		trig:     trigger{endpoint: target, pattern: pattern},
		mu:       sync.Mutex{},
		flows:    make(map[fiveTuple]time.Time),
	}
}

// Filter implements [packet.Filter].
func (b *Blackholer) Filter(pkt *packet.Packet) (packet.Target, []*packet.Packet) {
	// Drop packets belonging to an already-blackholed flow and
	// garbage collect entries whose blackholing has expired.
	flow := flowOf(pkt)
	now := time.Now()
	b.mu.Lock()
	deadline, tracked := b.flows[flow]
	blocked := tracked && now.Before(deadline)
	if tracked && !blocked {
		delete(b.flows, flow)
	}
	b.mu.Unlock()
	if blocked {
		return packet.DROP, nil
	}

	// Otherwise check whether this packet triggers blackholing.
	if !b.trig.matches(pkt) {
		return packet.ACCEPT, nil
	}

	// Start blackholing this flow.
	b.mu.Lock()
	b.flows[flow] = now.Add(b.duration)
	b.mu.Unlock()

	return packet.DROP, nil
}
