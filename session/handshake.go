// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"
	"io"
)

// protocolString identifies the BitTorrent wire protocol inside
// the handshake.
const protocolString = "BitTorrent protocol"

// handshakeSize is the fixed handshake size: a length byte, the
// protocol string, eight reserved bytes, the info-hash, and the
// peer id.
const handshakeSize = 1 + len(protocolString) + 8 + 20 + 20

// ErrBadHandshake indicates the remote sent bytes that are not a
// BitTorrent handshake.
var ErrBadHandshake = errors.New("invalid BitTorrent handshake")

// handshake is the decoded 68-byte BitTorrent handshake.
type handshake struct {
	// infoHash identifies the torrent.
	infoHash InfoHash

	// peerID identifies the remote peer.
	peerID [20]byte
}

// writeHandshake writes the 68-byte handshake to w.
func writeHandshake(w io.Writer, hs *handshake) error {
	buf := make([]byte, 0, handshakeSize)
	buf = append(buf, byte(len(protocolString)))
	buf = append(buf, protocolString...)
	buf = append(buf, make([]byte, 8)...) // reserved
	buf = append(buf, hs.infoHash[:]...)
	buf = append(buf, hs.peerID[:]...)
	_, err := w.Write(buf)
	return err
}

// readHandshake reads and decodes a 68-byte handshake from r.
func readHandshake(r io.Reader) (*handshake, error) {
	buf := make([]byte, handshakeSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if buf[0] != byte(len(protocolString)) ||
		string(buf[1:1+len(protocolString)]) != protocolString {
		return nil, ErrBadHandshake
	}
	hs := &handshake{}
	copy(hs.infoHash[:], buf[28:48])
	copy(hs.peerID[:], buf[48:handshakeSize])
	return hs, nil
}
