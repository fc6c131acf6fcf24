// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/zeebo/bencode"
)

// ErrInvalidPeers indicates the peers representation inside a
// tracker response is malformed.
var ErrInvalidPeers = errors.New("invalid peers representation")

// Error is a failure reason returned by a well-formed tracker
// response, as opposed to a transport or decoding error.
type Error struct {
	// FailureReason is the human-readable failure reason.
	FailureReason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "tracker failure: " + e.FailureReason
}

// AnnounceResponse contains a successful announce response.
type AnnounceResponse struct {
	// Complete is the number of seeders in the swarm.
	Complete int64

	// Incomplete is the number of leechers in the swarm.
	Incomplete int64

	// Interval is how long the tracker would like us to wait
	// before the next periodic announce.
	Interval time.Duration

	// MinInterval is the optional floor below which we must not
	// schedule announces. Zero means the tracker sent none.
	MinInterval time.Duration

	// Peers contains the swarm endpoints returned by the tracker
	// across both address families.
	Peers []netip.AddrPort

	// TrackerID is an optional opaque identifier.
	TrackerID string

	// Warning is the optional warning message.
	Warning string
}

// announceResponse is the bencoded announce response body.
type announceResponse struct {
	Complete       int64              `bencode:"complete"`
	FailureReason  string             `bencode:"failure reason"`
	Incomplete     int64              `bencode:"incomplete"`
	Interval       int64              `bencode:"interval"`
	MinInterval    int64              `bencode:"min interval"`
	Peers          bencode.RawMessage `bencode:"peers"`
	Peers6         bencode.RawMessage `bencode:"peers6"`
	TrackerID      string             `bencode:"tracker id"`
	WarningMessage string             `bencode:"warning message"`
}

// dictPeer is a single peer in the dictionary list representation.
type dictPeer struct {
	IP   string `bencode:"ip"`
	Port uint16 `bencode:"port"`
}

// decodeAnnounceResponse decodes the bencoded response body.
func decodeAnnounceResponse(body []byte) (*AnnounceResponse, error) {
	var wire announceResponse
	if err := bencode.DecodeBytes(body, &wire); err != nil {
		return nil, err
	}
	if wire.FailureReason != "" {
		return nil, &Error{FailureReason: wire.FailureReason}
	}

	peers, err := parsePeers(wire.Peers, 4)
	if err != nil {
		return nil, err
	}
	peers6, err := parsePeers(wire.Peers6, 16)
	if err != nil {
		return nil, err
	}

	return &AnnounceResponse{
		Complete:    wire.Complete,
		Incomplete:  wire.Incomplete,
		Interval:    time.Duration(wire.Interval) * time.Second,
		MinInterval: time.Duration(wire.MinInterval) * time.Second,
		Peers:       append(peers, peers6...),
		TrackerID:   wire.TrackerID,
		Warning:     wire.WarningMessage,
	}, nil
}

// parsePeers parses either peer representation: a bencoded string
// of fixed-size compact records, or a bencoded list of
// dictionaries. List entries whose "ip" key is a DNS name rather
// than an address are skipped.
func parsePeers(raw bencode.RawMessage, addrlen int) ([]netip.AddrPort, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] == 'l' {
		var list []dictPeer
		if err := bencode.DecodeBytes(raw, &list); err != nil {
			return nil, err
		}
		var peers []netip.AddrPort
		for _, peer := range list {
			addr, err := netip.ParseAddr(peer.IP)
			if err != nil {
				continue
			}
			peers = append(peers, netip.AddrPortFrom(addr.Unmap(), peer.Port))
		}
		return peers, nil
	}

	var compact string
	if err := bencode.DecodeBytes(raw, &compact); err != nil {
		return nil, err
	}
	return parseCompactPeers([]byte(compact), addrlen)
}

// parseCompactPeers parses the compact peers representation, in
// which each record is addrlen address bytes followed by a 2-byte
// big-endian port (BEP 23 for IPv4, BEP 7 for IPv6).
func parseCompactPeers(data []byte, addrlen int) ([]netip.AddrPort, error) {
	recordlen := addrlen + 2
	if len(data)%recordlen != 0 {
		return nil, fmt.Errorf(
			"%w: length %d is not a multiple of %d",
			ErrInvalidPeers, len(data), recordlen,
		)
	}
	var peers []netip.AddrPort
	for off := 0; off < len(data); off += recordlen {
		addr, ok := netip.AddrFromSlice(data[off : off+addrlen])
		if !ok {
			return nil, fmt.Errorf("%w: invalid address bytes", ErrInvalidPeers)
		}
		port := binary.BigEndian.Uint16(data[off+addrlen : off+recordlen])
		peers = append(peers, netip.AddrPortFrom(addr.Unmap(), port))
	}
	return peers, nil
}
