// SPDX-License-Identifier: GPL-3.0-or-later

package session_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbmk-project/btcore/ipfilter"
	"github.com/rbmk-project/btcore/netcore"
	"github.com/rbmk-project/btcore/netsim"
	"github.com/rbmk-project/btcore/session"
	"github.com/rbmk-project/btcore/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testInfoHash returns a fixed info hash.
func testInfoHash() (ih session.InfoHash) {
	for idx := range ih {
		ih[idx] = 0xab
	}
	return
}

// rawHandshake builds the 68-byte BitTorrent handshake for the
// given info hash and peer id.
func rawHandshake(infoHash session.InfoHash, peerID string) []byte {
	buf := make([]byte, 0, 68)
	buf = append(buf, 19)
	buf = append(buf, "BitTorrent protocol"...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, infoHash[:]...)
	var pid [20]byte
	copy(pid[:], peerID)
	buf = append(buf, pid[:]...)
	return buf
}

// sessionNetwork returns a network layer backed by the given
// simulated stack.
func sessionNetwork(stack *netsim.Stack) *netcore.Network {
	return &netcore.Network{
		DialContextFunc: stack.DialContext,
		ListenFunc:      stack.Listen,
		LookupHostFunc:  stack.LookupHost,
	}
}

// blockedRangeFilter returns a filter blocking 60.0.0.0-60.0.0.2.
func blockedRangeFilter(t *testing.T) *ipfilter.Filter {
	t.Helper()
	filter := ipfilter.New()
	require.NoError(t, filter.AddRule(
		netip.MustParseAddr("60.0.0.0"),
		netip.MustParseAddr("60.0.0.2"),
		ipfilter.Blocked,
	))
	return filter
}

// fakePeer is a remote peer running on a simulated stack. It counts
// accepted connections and completes the handshake on each of them.
type fakePeer struct {
	accepted atomic.Int32
	addr     netip.AddrPort
	infoHash session.InfoHash
}

// startFakePeer starts a fake peer listening on port 6881 of the
// given address inside the given scenario.
func startFakePeer(t *testing.T, scenario *netsim.Scenario, addr string, infoHash session.InfoHash) *fakePeer {
	t.Helper()
	stack := scenario.MustNewPeerStack(addr)
	scenario.Attach(stack)
	endpoint := netip.AddrPortFrom(netip.MustParseAddr(addr), 6881)
	listener, err := stack.Listen(context.Background(), "tcp", endpoint.String())
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	peer := &fakePeer{addr: endpoint, infoHash: infoHash}
	go peer.acceptLoop(listener)
	return peer
}

// acceptLoop accepts connections until the listener closes.
func (p *fakePeer) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		p.accepted.Add(1)
		go p.serve(conn)
	}
}

// serve completes the handshake and drains the connection.
func (p *fakePeer) serve(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 68)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return
	}
	if _, err := conn.Write(rawHandshake(p.infoHash, "-FP0001-000000000000")); err != nil {
		return
	}
	io.Copy(io.Discard, conn)
}

// startFakeSwarm starts fake peers on 60.0.0.0 through 60.0.0.4 and
// returns them along with their endpoints.
func startFakeSwarm(t *testing.T, scenario *netsim.Scenario, infoHash session.InfoHash) ([]*fakePeer, []netip.AddrPort) {
	t.Helper()
	var (
		peers     []*fakePeer
		endpoints []netip.AddrPort
	)
	for idx := 0; idx < 5; idx++ {
		peer := startFakePeer(t, scenario, fmt.Sprintf("60.0.0.%d", idx), infoHash)
		peers = append(peers, peer)
		endpoints = append(endpoints, peer.addr)
	}
	return peers, endpoints
}

func TestSessionBlocksOutboundPeers(t *testing.T) {
	scenario := netsim.NewScenario()
	defer scenario.Close()

	infoHash := testInfoHash()
	peers, endpoints := startFakeSwarm(t, scenario, infoHash)

	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)
	sess, err := session.New(&session.Config{Network: sessionNetwork(clientStack)})
	require.NoError(t, err)

	sess.SetIPFilter(blockedRangeFilter(t))

	torrent, err := sess.AddTorrent(&session.TorrentSpec{
		InfoHash: infoHash,
		Peers:    endpoints,
	})
	require.NoError(t, err)

	// Only the peers outside the blocked range connect.
	require.Eventually(t, func() bool {
		return torrent.NumPeers() >= 2
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, []netip.AddrPort{
		netip.MustParseAddrPort("60.0.0.3:6881"),
		netip.MustParseAddrPort("60.0.0.4:6881"),
	}, torrent.Peers())

	require.NoError(t, sess.Close())

	// The blocked peers never observed a connection attempt.
	for idx, peer := range peers {
		if idx <= 2 {
			assert.Equal(t, int32(0), peer.accepted.Load(), "peer %s", peer.addr)
		} else {
			assert.Equal(t, int32(1), peer.accepted.Load(), "peer %s", peer.addr)
		}
	}

	// Each blocked candidate raised an outbound block alert.
	blocked := map[netip.AddrPort]bool{}
	for alert := range sess.Alerts() {
		if a, ok := alert.(session.PeerBlockedAlert); ok {
			assert.Equal(t, session.DirectionOutbound, a.Direction)
			blocked[a.Addr] = true
		}
	}
	assert.Equal(t, map[netip.AddrPort]bool{
		netip.MustParseAddrPort("60.0.0.0:6881"): true,
		netip.MustParseAddrPort("60.0.0.1:6881"): true,
		netip.MustParseAddrPort("60.0.0.2:6881"): true,
	}, blocked)
}

func TestSessionTorrentFilterOverride(t *testing.T) {
	scenario := netsim.NewScenario()
	defer scenario.Close()

	infoHash := testInfoHash()
	peers, endpoints := startFakeSwarm(t, scenario, infoHash)

	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)
	sess, err := session.New(&session.Config{Network: sessionNetwork(clientStack)})
	require.NoError(t, err)

	sess.SetIPFilter(blockedRangeFilter(t))

	// The torrent opts out of the filter, so every peer connects.
	torrent, err := sess.AddTorrent(&session.TorrentSpec{
		DisableIPFilter: true,
		InfoHash:        infoHash,
		Peers:           endpoints,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return torrent.NumPeers() >= 5
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, endpoints, torrent.Peers())

	require.NoError(t, sess.Close())

	for _, peer := range peers {
		assert.Equal(t, int32(1), peer.accepted.Load(), "peer %s", peer.addr)
	}
	for alert := range sess.Alerts() {
		_, ok := alert.(session.PeerBlockedAlert)
		assert.False(t, ok, "unexpected alert: %s", alert)
	}
}

func TestSessionFilterSparesEstablishedPeers(t *testing.T) {
	scenario := netsim.NewScenario()
	defer scenario.Close()

	infoHash := testInfoHash()
	_, endpoints := startFakeSwarm(t, scenario, infoHash)

	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	// Count the dials to prove blocked candidates never reach the
	// network layer.
	var dials atomic.Int32
	netx := sessionNetwork(clientStack)
	netx.DialContextFunc = func(ctx context.Context, network, address string) (net.Conn, error) {
		dials.Add(1)
		return clientStack.DialContext(ctx, network, address)
	}
	sess, err := session.New(&session.Config{Network: netx})
	require.NoError(t, err)

	// With no filter installed, the whole swarm connects.
	torrent, err := sess.AddTorrent(&session.TorrentSpec{
		InfoHash: infoHash,
		Peers:    endpoints,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return torrent.NumPeers() >= 5
	}, 10*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(5), dials.Load())

	// Installing the filter never disconnects established peers.
	sess.SetIPFilter(blockedRangeFilter(t))
	assert.Equal(t, 5, torrent.NumPeers())

	// New candidates in the blocked range are gated before dialing.
	torrent.AddPeers(
		netip.MustParseAddrPort("60.0.0.0:6882"),
		netip.MustParseAddrPort("60.0.0.1:6882"),
		netip.MustParseAddrPort("60.0.0.2:6882"),
	)
	blocked := map[netip.AddrPort]bool{}
	timeout := time.After(10 * time.Second)
	for len(blocked) < 3 {
		select {
		case alert := <-sess.Alerts():
			if a, ok := alert.(session.PeerBlockedAlert); ok {
				assert.Equal(t, session.DirectionOutbound, a.Direction)
				blocked[a.Addr] = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for peer blocked alerts")
		}
	}
	assert.Equal(t, map[netip.AddrPort]bool{
		netip.MustParseAddrPort("60.0.0.0:6882"): true,
		netip.MustParseAddrPort("60.0.0.1:6882"): true,
		netip.MustParseAddrPort("60.0.0.2:6882"): true,
	}, blocked)
	assert.Equal(t, int32(5), dials.Load())
	assert.Equal(t, 5, torrent.NumPeers())

	require.NoError(t, sess.Close())
}

func TestSessionGatesInboundPeers(t *testing.T) {
	scenario := netsim.NewScenario()
	defer scenario.Close()

	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	var peerID [20]byte
	copy(peerID[:], "-BC0001-abcdefabcdef")
	sess, err := session.New(&session.Config{
		ListenAddrs: []string{"50.0.0.1:6881"},
		Network:     sessionNetwork(clientStack),
		PeerID:      peerID,
	})
	require.NoError(t, err)
	assert.Equal(t, uint16(6881), sess.LocalPort())

	infoHash := testInfoHash()
	torrent, err := sess.AddTorrent(&session.TorrentSpec{InfoHash: infoHash})
	require.NoError(t, err)

	sess.SetIPFilter(blockedRangeFilter(t))

	dialSession := func(t *testing.T, addr string) net.Conn {
		t.Helper()
		stack := scenario.MustNewPeerStack(addr)
		scenario.Attach(stack)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := stack.DialContext(ctx, "tcp", "50.0.0.1:6881")
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
		return conn
	}

	t.Run("blocked peers are closed without a handshake", func(t *testing.T) {
		conn := dialSession(t, "60.0.0.1")
		buf := make([]byte, 1)
		n, err := conn.Read(buf)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 0, torrent.NumPeers())
	})

	t.Run("admitted peers complete the handshake", func(t *testing.T) {
		conn := dialSession(t, "60.0.0.3")
		_, err := conn.Write(rawHandshake(infoHash, "-FP0001-000000000000"))
		require.NoError(t, err)

		reply := make([]byte, 68)
		_, err = io.ReadFull(conn, reply)
		require.NoError(t, err)
		assert.Equal(t, rawHandshake(infoHash, string(peerID[:])), reply)

		require.Eventually(t, func() bool {
			return torrent.NumPeers() == 1
		}, 10*time.Second, 10*time.Millisecond)
	})

	t.Run("unknown info hashes are closed after the handshake", func(t *testing.T) {
		conn := dialSession(t, "60.0.0.4")
		var unknown session.InfoHash
		copy(unknown[:], "another torrent hash")
		_, err := conn.Write(rawHandshake(unknown, "-FP0001-000000000000"))
		require.NoError(t, err)

		buf := make([]byte, 1)
		n, err := conn.Read(buf)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 1, torrent.NumPeers())
	})

	require.NoError(t, sess.Close())

	var blockedSeen, connectedSeen bool
	for alert := range sess.Alerts() {
		switch a := alert.(type) {
		case session.PeerBlockedAlert:
			assert.Equal(t, session.DirectionInbound, a.Direction)
			assert.Equal(t, netip.MustParseAddr("60.0.0.1"), a.Addr.Addr())
			blockedSeen = true
		case session.PeerConnectedAlert:
			assert.Equal(t, session.DirectionInbound, a.Direction)
			assert.Equal(t, netip.MustParseAddr("60.0.0.3"), a.Addr.Addr())
			assert.Equal(t, infoHash, a.InfoHash)
			connectedSeen = true
		}
	}
	assert.True(t, blockedSeen, "expected an inbound peer blocked alert")
	assert.True(t, connectedSeen, "expected an inbound peer connected alert")
}

func TestSessionFilterSnapshots(t *testing.T) {
	sess, err := session.New(nil)
	require.NoError(t, err)
	defer sess.Close()

	assert.Nil(t, sess.IPFilter())

	filter := ipfilter.New()
	require.NoError(t, filter.AddCIDR("60.0.0.0/24", ipfilter.Blocked))
	sess.SetIPFilter(filter)

	// Mutating the caller's filter does not affect the snapshot.
	require.NoError(t, filter.AddCIDR("61.0.0.0/24", ipfilter.Blocked))
	snapshot := sess.IPFilter()
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.Len())
	assert.True(t, snapshot.IsBlocked(netip.MustParseAddr("60.0.0.7")))
	assert.False(t, snapshot.IsBlocked(netip.MustParseAddr("61.0.0.7")))

	// Mutating the returned snapshot does not affect the session.
	require.NoError(t, snapshot.AddCIDR("62.0.0.0/24", ipfilter.Blocked))
	assert.Equal(t, 1, sess.IPFilter().Len())

	// A nil filter removes the policy.
	sess.SetIPFilter(nil)
	assert.Nil(t, sess.IPFilter())
}

func TestSessionClose(t *testing.T) {
	sess, err := session.New(nil)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	// The alerts channel is closed.
	_, ok := <-sess.Alerts()
	assert.False(t, ok)

	// Adding a torrent after close fails.
	torrent, err := sess.AddTorrent(&session.TorrentSpec{InfoHash: testInfoHash()})
	assert.Nil(t, torrent)
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestAddTorrentValidation(t *testing.T) {
	sess, err := session.New(nil)
	require.NoError(t, err)
	defer sess.Close()

	t.Run("rejects the zero info hash", func(t *testing.T) {
		torrent, err := sess.AddTorrent(&session.TorrentSpec{})
		assert.Nil(t, torrent)
		assert.Error(t, err)
	})

	t.Run("rejects non-http tracker schemes", func(t *testing.T) {
		torrent, err := sess.AddTorrent(&session.TorrentSpec{
			InfoHash: testInfoHash(),
			Trackers: []string{"udp://tracker.example.com:6969/announce"},
		})
		assert.Nil(t, torrent)
		assert.ErrorIs(t, err, tracker.ErrUnsupportedScheme)
	})

	t.Run("rejects invalid tracker URLs", func(t *testing.T) {
		torrent, err := sess.AddTorrent(&session.TorrentSpec{
			InfoHash: testInfoHash(),
			Trackers: []string{"http://tracker exa mple.com/announce"},
		})
		assert.Nil(t, torrent)
		assert.Error(t, err)
	})

	t.Run("rejects duplicate info hashes", func(t *testing.T) {
		first, err := sess.AddTorrent(&session.TorrentSpec{InfoHash: testInfoHash()})
		require.NoError(t, err)
		defer first.Drop()

		second, err := sess.AddTorrent(&session.TorrentSpec{InfoHash: testInfoHash()})
		assert.Nil(t, second)
		assert.ErrorIs(t, err, session.ErrDuplicateTorrent)
	})
}
