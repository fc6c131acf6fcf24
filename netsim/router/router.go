// SPDX-License-Identifier: GPL-3.0-or-later

// Package router provides network routing capabilities for testing
package router

import (
	"errors"
	"net/netip"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// Router provides routing capabilities.
type Router struct {
	// devs tracks attached [packet.NetworkDevice].
	devs []packet.NetworkDevice

	// filters contains the packet filters to apply in transit.
	filters []packet.Filter

	// srt is the static routing table.
	srt map[netip.Addr]packet.NetworkDevice
}

// New creates a new [*Router].
func New() *Router {
	return &Router{
		devs:    make([]packet.NetworkDevice, 0),
		filters: make([]packet.Filter, 0),
		srt:     make(map[netip.Addr]packet.NetworkDevice),
	}
}

// Attach attaches a [packet.NetworkDevice] to the [*Router].
func (r *Router) Attach(dev packet.NetworkDevice) {
	r.devs = append(r.devs, dev)
	go r.readLoop(dev)
}

// AddRoute adds routes for all addresses of the given [packet.NetworkDevice].
func (r *Router) AddRoute(dev packet.NetworkDevice) {
	for _, addr := range dev.Addresses() {
		r.srt[addr] = dev
	}
}

// AddFilter adds a [packet.Filter] applied to each packet in transit.
//
// Filters run in the order they were added. A DROP verdict stops
// the packet; packets injected by a filter are routed as well.
//
// This method IS NOT goroutine safe: add filters before any
// attached device starts emitting traffic.
func (r *Router) AddFilter(f packet.Filter) {
	r.filters = append(r.filters, f)
}

// readLoop reads packets from a [packet.NetworkDevice] until EOF.
func (r *Router) readLoop(dev packet.NetworkDevice) {
	for {
		select {
		case <-dev.EOF():
			return
		case pkt := <-dev.Output():
			r.route(pkt)
		}
	}
}

var (
	// errTTLExceeded is returned when a packet's TTL is exceeded.
	errTTLExceeded = errors.New("TTL exceeded in transit")

	// errNoRouteToHost is returned when there is no route to the host.
	errNoRouteToHost = errors.New("no route to host")

	// errBufferFull is returned when the buffer is full.
	errBufferFull = errors.New("buffer full")

	// errFiltered is returned when a filter dropped the packet.
	errFiltered = errors.New("packet filtered")
)

// route routes a given packet to its destination.
func (r *Router) route(pkt *packet.Packet) error {
	// Decrement TTL.
	if pkt.TTL <= 0 {
		return errTTLExceeded
	}
	pkt.TTL--

	// Apply filters, forwarding whatever they inject.
	for _, f := range r.filters {
		verdict, injected := f.Filter(pkt)
		for _, extra := range injected {
			r.forward(extra)
		}
		if verdict == packet.DROP {
			return errFiltered
		}
	}

	// Forward the packet itself.
	return r.forward(pkt)
}

// forward delivers a packet to the next hop.
func (r *Router) forward(pkt *packet.Packet) error {
	// Find next hop.
	nextHop := r.srt[pkt.DstAddr]
	if nextHop == nil {
		return errNoRouteToHost
	}

	// Forward packet (non-blocking)
	select {
	case nextHop.Input() <- pkt:
		return nil
	default:
		return errBufferFull
	}
}
