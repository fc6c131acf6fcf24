// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"cmp"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/rbmk-project/btcore/tracker"
)

// InfoHash is the 20-byte identifier of a torrent.
type InfoHash [20]byte

// String returns the hexadecimal info-hash representation.
func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// ErrDuplicateTorrent indicates the info-hash is already registered
// with the session.
var ErrDuplicateTorrent = errors.New("torrent already added")

// TorrentSpec describes a torrent to add to a session.
type TorrentSpec struct {
	// DisableIPFilter exempts this torrent from the installed IP
	// filter. The exemption is fixed at add time.
	DisableIPFilter bool

	// InfoHash identifies the torrent and must be nonzero.
	InfoHash InfoHash

	// Left is the number of bytes left to download. Zero means
	// the torrent starts out complete.
	Left int64

	// Peers are candidate peers to dial immediately.
	Peers []netip.AddrPort

	// Trackers are the HTTP announce URLs.
	Trackers []string
}

// Torrent is a torrent registered with a session.
//
// Construct using [Session.AddTorrent].
type Torrent struct {
	// announcers hold one announcer per tracker URL. The slice is
	// fixed at add time and read-only thereafter.
	announcers []*announcer

	// disableIPFilter exempts this torrent from the IP filter.
	disableIPFilter bool

	// downloaded counts the bytes received from peers.
	downloaded int64

	// dropped becomes true when the torrent is dropped.
	dropped bool

	// infoHash identifies the torrent.
	infoHash InfoHash

	// left is the number of bytes left to download.
	left int64

	// mu guards downloaded, dropped, left, and peers.
	mu sync.Mutex

	// peers maps endpoints to attached peer connections.
	peers map[netip.AddrPort]net.Conn

	// session is the owning session.
	session *Session
}

// AddTorrent registers a torrent with the session, starts one
// announcer per tracker URL, and dials the candidate peers through
// the outbound admission gate.
//
// Tracker URLs must use the http scheme; other schemes cause an
// error wrapping [tracker.ErrUnsupportedScheme]. Registering an
// info-hash twice returns [ErrDuplicateTorrent].
func (s *Session) AddTorrent(spec *TorrentSpec) (*Torrent, error) {
	if spec.InfoHash == (InfoHash{}) {
		return nil, errors.New("torrent spec has no info hash")
	}
	trackerURLs := make([]*url.URL, 0, len(spec.Trackers))
	for _, trackerURL := range spec.Trackers {
		parsed, err := url.Parse(trackerURL)
		if err != nil {
			return nil, err
		}
		if parsed.Scheme != "http" {
			return nil, fmt.Errorf("%w: %s", tracker.ErrUnsupportedScheme, parsed.Scheme)
		}
		trackerURLs = append(trackerURLs, parsed)
	}

	torrent := &Torrent{
		announcers:      nil,
		disableIPFilter: spec.DisableIPFilter,
		dropped:         false,
		infoHash:        spec.InfoHash,
		left:            spec.Left,
		mu:              sync.Mutex{},
		peers:           map[netip.AddrPort]net.Conn{},
		session:         s,
	}
	for _, trackerURL := range trackerURLs {
		torrent.announcers = append(torrent.announcers, newAnnouncer(s, torrent, trackerURL))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if _, found := s.torrents[spec.InfoHash]; found {
		s.mu.Unlock()
		return nil, ErrDuplicateTorrent
	}
	s.torrents[spec.InfoHash] = torrent
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.InfoContext(
			s.ctx,
			"torrentAdded",
			slog.Bool("disableIPFilter", torrent.disableIPFilter),
			slog.String("infoHash", torrent.infoHash.String()),
			slog.Int("numPeers", len(spec.Peers)),
			slog.Int("numTrackers", len(torrent.announcers)),
			slog.Time("t", time.Now()),
		)
	}

	for _, announcer := range torrent.announcers {
		s.wg.Add(1)
		go announcer.run()
	}
	torrent.AddPeers(spec.Peers...)
	return torrent, nil
}

// InfoHash returns the torrent info-hash.
func (t *Torrent) InfoHash() InfoHash {
	return t.infoHash
}

// AddPeers queues candidate peers for outbound connection through
// the admission gate. Blocked candidates raise [PeerBlockedAlert]
// and are never dialed.
func (t *Torrent) AddPeers(peers ...netip.AddrPort) {
	t.mu.Lock()
	dropped := t.dropped
	t.mu.Unlock()
	if dropped {
		return
	}
	for _, peer := range peers {
		t.session.dialPeer(t, peer)
	}
}

// NumPeers returns the number of attached peers.
func (t *Torrent) NumPeers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

// Peers returns the attached peer endpoints in sorted order.
func (t *Torrent) Peers() []netip.AddrPort {
	t.mu.Lock()
	defer t.mu.Unlock()
	peers := make([]netip.AddrPort, 0, len(t.peers))
	for peer := range t.peers {
		peers = append(peers, peer)
	}
	slices.SortFunc(peers, func(a, b netip.AddrPort) int {
		if diff := a.Addr().Compare(b.Addr()); diff != 0 {
			return diff
		}
		return cmp.Compare(a.Port(), b.Port())
	})
	return peers
}

// bytesLeft returns the number of bytes left to download.
func (t *Torrent) bytesLeft() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left
}

// bytesDownloaded returns the number of bytes received from peers.
func (t *Torrent) bytesDownloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded
}

// Complete marks the download as complete. The first call on a
// torrent added with a positive Left triggers a completed announce
// on every tracker; torrents that start out complete never announce
// completed. Further calls do nothing.
func (t *Torrent) Complete() {
	t.mu.Lock()
	wasDownloading := t.left > 0
	t.left = 0
	t.mu.Unlock()
	if !wasDownloading {
		return
	}
	for _, announcer := range t.announcers {
		announcer.signalCompleted()
	}
}

// announceRequest builds the announce request for the given event.
func (t *Torrent) announceRequest(event tracker.Event) *tracker.AnnounceRequest {
	numWant := defaultNumWant
	if event == tracker.EventStopped {
		numWant = 0
	}
	return &tracker.AnnounceRequest{
		InfoHash:   [20]byte(t.infoHash),
		PeerID:     t.session.peerID,
		Port:       t.session.LocalPort(),
		Uploaded:   0,
		Downloaded: t.bytesDownloaded(),
		Left:       t.bytesLeft(),
		Event:      event,
		NumWant:    numWant,
	}
}

// attach registers a peer connection that passed the gates and
// completed the handshake, then spawns the loop draining it.
func (t *Torrent) attach(conn net.Conn, addr netip.AddrPort, direction Direction) {
	t.mu.Lock()
	if t.dropped {
		t.mu.Unlock()
		conn.Close()
		return
	}
	if _, found := t.peers[addr]; found {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.peers[addr] = conn
	t.mu.Unlock()

	sess := t.session
	if sess.logger != nil {
		sess.logger.InfoContext(
			sess.ctx,
			"peerConnected",
			slog.String("direction", direction.String()),
			slog.String("infoHash", t.infoHash.String()),
			slog.String("remoteAddr", addr.String()),
			slog.Time("t", time.Now()),
		)
	}
	sess.emit(PeerConnectedAlert{Addr: addr, Direction: direction, InfoHash: t.infoHash})

	sess.wg.Add(1)
	go t.readLoop(conn, addr)
}

// readLoop drains a peer connection until it fails or closes. We
// implement no wire protocol beyond the handshake, so incoming
// bytes are counted and discarded.
func (t *Torrent) readLoop(conn net.Conn, addr netip.AddrPort) {
	defer t.session.wg.Done()
	buffer := make([]byte, 32*1024)
	for {
		count, err := conn.Read(buffer)
		if count > 0 {
			t.mu.Lock()
			t.downloaded += int64(count)
			t.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
	conn.Close()
	t.mu.Lock()
	if t.peers[addr] == conn {
		delete(t.peers, addr)
	}
	t.mu.Unlock()
}

// Drop removes the torrent from the session, closes its peer
// connections, and stops its announcers. Each announcer that ever
// reached its tracker sends a final stopped announce.
func (t *Torrent) Drop() {
	t.drop()
}

// drop implements [Torrent.Drop] and is idempotent.
func (t *Torrent) drop() {
	t.mu.Lock()
	if t.dropped {
		t.mu.Unlock()
		return
	}
	t.dropped = true
	conns := make([]net.Conn, 0, len(t.peers))
	for _, conn := range t.peers {
		conns = append(conns, conn)
	}
	t.peers = map[netip.AddrPort]net.Conn{}
	t.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	for _, announcer := range t.announcers {
		announcer.stop()
	}
	t.session.removeTorrent(t.infoHash)

	if sess := t.session; sess.logger != nil {
		sess.logger.InfoContext(
			sess.ctx,
			"torrentDropped",
			slog.String("infoHash", t.infoHash.String()),
			slog.Time("t", time.Now()),
		)
	}
}
