// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	ours := &handshake{}
	for idx := range ours.infoHash {
		ours.infoHash[idx] = byte(idx)
	}
	copy(ours.peerID[:], "-BC0001-0123456789ab")

	var buf bytes.Buffer
	require.NoError(t, writeHandshake(&buf, ours))
	require.Equal(t, handshakeSize, buf.Len())

	// check the wire layout before decoding
	raw := buf.Bytes()
	assert.Equal(t, byte(len(protocolString)), raw[0])
	assert.Equal(t, protocolString, string(raw[1:20]))
	assert.Equal(t, make([]byte, 8), raw[20:28])

	theirs, err := readHandshake(&buf)
	require.NoError(t, err)
	assert.Equal(t, ours.infoHash, theirs.infoHash)
	assert.Equal(t, ours.peerID, theirs.peerID)
}

func TestReadHandshake(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		hs := &handshake{infoHash: InfoHash{0xab}, peerID: [20]byte{0xcd}}
		if err := writeHandshake(&buf, hs); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	t.Run("rejects a wrong length prefix", func(t *testing.T) {
		raw := valid()
		raw[0] = 5
		hs, err := readHandshake(bytes.NewReader(raw))
		assert.Nil(t, hs)
		assert.ErrorIs(t, err, ErrBadHandshake)
	})

	t.Run("rejects an unknown protocol string", func(t *testing.T) {
		raw := valid()
		copy(raw[1:], "BitTorrent protocoX")
		hs, err := readHandshake(bytes.NewReader(raw))
		assert.Nil(t, hs)
		assert.ErrorIs(t, err, ErrBadHandshake)
	})

	t.Run("fails on truncated input", func(t *testing.T) {
		raw := valid()
		hs, err := readHandshake(bytes.NewReader(raw[:40]))
		assert.Nil(t, hs)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("fails on empty input", func(t *testing.T) {
		hs, err := readHandshake(bytes.NewReader(nil))
		assert.Nil(t, hs)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestInfoHashString(t *testing.T) {
	var ih InfoHash
	copy(ih[:], []byte{0xde, 0xad, 0xbe, 0xef})
	assert.Equal(t, "deadbeef00000000000000000000000000000000", ih.String())
}
