// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"fmt"
	"net/netip"

	"github.com/rbmk-project/btcore/tracker"
)

// Alert is an event observed by the session and delivered through
// the channel returned by [Session.Alerts].
type Alert interface {
	// String returns a human-readable alert description.
	String() string
}

// Direction indicates whether a gated connection was inbound
// or outbound.
type Direction uint8

const (
	// DirectionInbound marks connections we accepted.
	DirectionInbound = Direction(iota)

	// DirectionOutbound marks connections we initiated.
	DirectionOutbound
)

// String implements [fmt.Stringer].
func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// PeerBlockedAlert reports a peer connection halted by the installed
// IP filter or by the outbound port policy. No protocol byte was
// exchanged with the peer.
type PeerBlockedAlert struct {
	// Addr is the blocked peer endpoint.
	Addr netip.AddrPort

	// Direction tells which gate blocked the peer.
	Direction Direction
}

// String implements [Alert].
func (a PeerBlockedAlert) String() string {
	return fmt.Sprintf("peer blocked: %s (%s)", a.Addr, a.Direction)
}

// PeerConnectedAlert reports a peer that completed the handshake and
// is now attached to a torrent.
type PeerConnectedAlert struct {
	// Addr is the peer endpoint.
	Addr netip.AddrPort

	// Direction tells who initiated the connection.
	Direction Direction

	// InfoHash identifies the owning torrent.
	InfoHash InfoHash
}

// String implements [Alert].
func (a PeerConnectedAlert) String() string {
	return fmt.Sprintf("peer connected: %s (%s)", a.Addr, a.Direction)
}

// TrackerAnnounceAlert reports the outcome of an announce cycle.
type TrackerAnnounceAlert struct {
	// Err is nil when at least one resolved tracker endpoint
	// acknowledged the announce.
	Err error

	// Event is the announced event.
	Event tracker.Event

	// URL is the tracker URL as configured.
	URL string
}

// String implements [Alert].
func (a TrackerAnnounceAlert) String() string {
	event := a.Event.String()
	if event == "" {
		event = "update"
	}
	if a.Err != nil {
		return fmt.Sprintf("tracker announce failed: %s (%s): %s", a.URL, event, a.Err)
	}
	return fmt.Sprintf("tracker announce: %s (%s)", a.URL, event)
}

// TrackerSkippedAlert reports a resolved tracker endpoint that the
// installed IP filter blocked. The endpoint received no request, as
// if the tracker were unreachable.
type TrackerSkippedAlert struct {
	// Addr is the blocked resolved address.
	Addr netip.Addr

	// URL is the tracker URL as configured.
	URL string
}

// String implements [Alert].
func (a TrackerSkippedAlert) String() string {
	return fmt.Sprintf("tracker skipped: %s (%s blocked)", a.URL, a.Addr)
}
