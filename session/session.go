// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rbmk-project/btcore/ipfilter"
	"github.com/rbmk-project/btcore/netcore"
	"github.com/rbmk-project/btcore/netipx"
	"github.com/rbmk-project/common/runtimex"
	"golang.org/x/time/rate"
)

// defaultAlertsBufferSize is the default capacity of the alerts
// channel. When the channel is full, new alerts are dropped.
const defaultAlertsBufferSize = 128

// handshakeTimeout bounds the handshake exchange with a peer.
const handshakeTimeout = 10 * time.Second

// connectTimeout bounds outbound peer dials.
const connectTimeout = 10 * time.Second

// ErrClosed indicates the session is closed.
var ErrClosed = errors.New("session is closed")

// Config configures a [*Session]. The zero value is usable: no
// listeners, no filter, a random peer id, and unlimited dialing.
type Config struct {
	// AlertsBufferSize is the optional capacity of the alerts
	// channel. Zero or negative means 128.
	AlertsBufferSize int

	// Clock is the optional clock used to schedule tracker
	// announces. A nil Clock means the system clock. Tests use
	// a mock clock to step through announce intervals.
	Clock clock.Clock

	// DialBurst is the optional burst size of the outbound dial
	// rate limiter. Only used when DialRateLimit is positive;
	// values below one are clamped to one.
	DialBurst int

	// DialRateLimit optionally limits outbound peer dials per
	// second. Zero or negative means unlimited.
	DialRateLimit rate.Limit

	// ListenAddrs are the optional addresses on which to accept
	// inbound peer connections.
	ListenAddrs []string

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Network is the optional network layer. A nil Network means
	// the host network. Tests inject simulated stacks here.
	Network *netcore.Network

	// PeerID is the optional peer id presented in handshakes and
	// announces. The zero value means a random peer id.
	PeerID [20]byte

	// PortFilter is the optional outbound port policy. Candidate
	// peers whose port it classifies as blocked are never dialed.
	PortFilter *ipfilter.PortTable
}

// Session owns the installed IP filter and the torrents, and gates
// every inbound accept, outbound connect, and tracker announce on
// the filter. Construct using [New].
type Session struct {
	// alerts delivers policy and connectivity events.
	alerts chan Alert

	// cancel terminates the session context.
	cancel context.CancelFunc

	// clk schedules tracker announces.
	clk clock.Clock

	// closed becomes true when Close starts.
	closed bool

	// ctx is the session lifetime context.
	ctx context.Context

	// filter is the installed filter snapshot. It may be nil and
	// is never mutated after installation.
	filter *ipfilter.Filter

	// limiter rate limits outbound peer dials.
	limiter *rate.Limiter

	// listeners accept inbound peer connections.
	listeners []net.Listener

	// logger is the optional structured logger.
	logger *slog.Logger

	// mu guards filter, listeners, torrents, and closed.
	mu sync.Mutex

	// netx is the underlying network layer.
	netx *netcore.Network

	// peerID is our peer id.
	peerID [20]byte

	// portFilter is the optional outbound port policy.
	portFilter *ipfilter.PortTable

	// torrents maps info-hashes to registered torrents.
	torrents map[InfoHash]*Torrent

	// wg tracks the session goroutines.
	wg sync.WaitGroup
}

// New creates a [*Session] and starts accepting inbound peers on
// the configured listen addresses. A nil config is equivalent to
// the zero-value config.
func New(config *Config) (*Session, error) {
	if config == nil {
		config = &Config{}
	}
	netx := config.Network
	if netx == nil {
		netx = &netcore.Network{}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	peerID := config.PeerID
	if peerID == ([20]byte{}) {
		peerID = newPeerID()
	}
	limit, burst := rate.Inf, 0
	if config.DialRateLimit > 0 {
		limit, burst = config.DialRateLimit, max(config.DialBurst, 1)
	}
	bufsize := config.AlertsBufferSize
	if bufsize <= 0 {
		bufsize = defaultAlertsBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		alerts:     make(chan Alert, bufsize),
		cancel:     cancel,
		clk:        clk,
		closed:     false,
		ctx:        ctx,
		filter:     nil,
		limiter:    rate.NewLimiter(limit, burst),
		listeners:  nil,
		logger:     config.Logger,
		mu:         sync.Mutex{},
		netx:       netx,
		peerID:     peerID,
		portFilter: config.PortFilter,
		torrents:   map[InfoHash]*Torrent{},
		wg:         sync.WaitGroup{},
	}

	for _, addr := range config.ListenAddrs {
		listener, err := netx.Listen(ctx, "tcp", addr)
		if err != nil {
			for _, opened := range sess.listeners {
				opened.Close()
			}
			cancel()
			return nil, err
		}
		sess.listeners = append(sess.listeners, listener)
	}
	for _, listener := range sess.listeners {
		sess.wg.Add(1)
		go sess.acceptLoop(listener)
	}
	return sess, nil
}

// newPeerID generates a random peer id with a fixed client prefix.
func newPeerID() (peerID [20]byte) {
	const prefix = "-BC0001-"
	var raw [6]byte
	runtimex.Try1(rand.Read(raw[:]))
	copy(peerID[:], prefix)
	copy(peerID[len(prefix):], hex.EncodeToString(raw[:]))
	return
}

// Alerts returns the channel delivering session alerts. The channel
// is closed by [Session.Close] after every emitter has stopped.
func (s *Session) Alerts() <-chan Alert {
	return s.alerts
}

// emit delivers an alert without ever blocking the session. When
// the alerts channel is full the alert is dropped.
func (s *Session) emit(alert Alert) {
	select {
	case s.alerts <- alert:
	default:
	}
}

// SetIPFilter installs a clone of the given filter as the active
// admission policy. The snapshot takes effect immediately for
// subsequent gate checks and never disconnects established peers.
// A nil filter removes the policy.
func (s *Session) SetIPFilter(filter *ipfilter.Filter) {
	var snapshot *ipfilter.Filter
	if filter != nil {
		snapshot = filter.Clone()
	}
	s.mu.Lock()
	s.filter = snapshot
	s.mu.Unlock()
}

// IPFilter returns a clone of the installed filter snapshot, or
// nil when no filter is installed.
func (s *Session) IPFilter() *ipfilter.Filter {
	s.mu.Lock()
	snapshot := s.filter
	s.mu.Unlock()
	if snapshot == nil {
		return nil
	}
	return snapshot.Clone()
}

// currentFilter returns the installed filter snapshot, which must
// not be mutated, or nil.
func (s *Session) currentFilter() *ipfilter.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// ipBlocked reports whether the installed filter snapshot blocks
// the given address.
func (s *Session) ipBlocked(addr netip.Addr) bool {
	filter := s.currentFilter()
	return filter != nil && filter.IsBlocked(addr)
}

// anyFilterDisabled reports whether at least one registered torrent
// opted out of the IP filter. When true, inbound connections from
// blocked addresses must still be allowed to handshake, since the
// owning torrent is only known after the handshake.
func (s *Session) anyFilterDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, torrent := range s.torrents {
		if torrent.disableIPFilter {
			return true
		}
	}
	return false
}

// findTorrent returns the registered torrent with the given
// info-hash, or nil.
func (s *Session) findTorrent(infoHash InfoHash) *Torrent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torrents[infoHash]
}

// removeTorrent unregisters the torrent with the given info-hash.
func (s *Session) removeTorrent(infoHash InfoHash) {
	s.mu.Lock()
	delete(s.torrents, infoHash)
	s.mu.Unlock()
}

// LocalPort returns the port of the first listener, or zero when
// the session has no listeners. This is the port announced to
// trackers.
func (s *Session) LocalPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) <= 0 {
		return 0
	}
	return netipx.AddrToAddrPort(s.listeners[0].Addr()).Port()
}

// acceptLoop accepts inbound connections until the listener closes.
func (s *Session) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleInbound(conn)
	}
}

// handleInbound runs the inbound admission gate and the handshake
// for an accepted connection.
//
// The session-level check runs before any read: when the remote
// address is blocked and no torrent overrides the filter, we close
// the connection with zero protocol bytes exchanged. Otherwise we
// read the handshake to learn the owning torrent and honor its
// override before replying.
func (s *Session) handleInbound(conn net.Conn) {
	defer s.wg.Done()
	remoteAddr := netipx.AddrToAddrPort(conn.RemoteAddr())

	if s.ipBlocked(remoteAddr.Addr()) && !s.anyFilterDisabled() {
		conn.Close()
		s.blockPeer(remoteAddr, DirectionInbound)
		return
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	theirs, err := readHandshake(conn)
	if err != nil {
		conn.Close()
		return
	}

	torrent := s.findTorrent(theirs.infoHash)
	if torrent == nil {
		conn.Close()
		return
	}
	if !torrent.disableIPFilter && s.ipBlocked(remoteAddr.Addr()) {
		conn.Close()
		s.blockPeer(remoteAddr, DirectionInbound)
		return
	}

	ours := &handshake{infoHash: theirs.infoHash, peerID: s.peerID}
	if err := writeHandshake(conn, ours); err != nil {
		conn.Close()
		return
	}
	conn.SetDeadline(time.Time{})
	torrent.attach(conn, remoteAddr, DirectionInbound)
}

// dialPeer asynchronously dials a candidate peer on behalf of a
// torrent, running the outbound admission gate before and after
// waiting for the dial rate limiter.
func (s *Session) dialPeer(torrent *Torrent, peer netip.AddrPort) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.admitOutbound(torrent, peer) {
			return
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		// The filter may have changed while we waited.
		if !s.admitOutbound(torrent, peer) {
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, connectTimeout)
		defer cancel()
		conn, err := s.netx.DialContext(ctx, "tcp", peer.String())
		if err != nil {
			return
		}

		conn.SetDeadline(time.Now().Add(handshakeTimeout))
		ours := &handshake{infoHash: torrent.infoHash, peerID: s.peerID}
		if err := writeHandshake(conn, ours); err != nil {
			conn.Close()
			return
		}
		theirs, err := readHandshake(conn)
		if err != nil || theirs.infoHash != torrent.infoHash {
			conn.Close()
			return
		}
		conn.SetDeadline(time.Time{})
		torrent.attach(conn, peer, DirectionOutbound)
	}()
}

// blockPeer records a policy block: it logs the corresponding
// structured event and raises [PeerBlockedAlert].
func (s *Session) blockPeer(addr netip.AddrPort, direction Direction) {
	if s.logger != nil {
		s.logger.InfoContext(
			s.ctx,
			"peerBlocked",
			slog.String("direction", direction.String()),
			slog.String("remoteAddr", addr.String()),
			slog.Time("t", time.Now()),
		)
	}
	s.emit(PeerBlockedAlert{Addr: addr, Direction: direction})
}

// Close stops the listeners, drops every torrent (each announcer
// sends a final stopped announce bounded by a short deadline),
// closes the peer connections, waits for the session goroutines,
// and finally closes the alerts channel. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	torrents := make([]*Torrent, 0, len(s.torrents))
	for _, torrent := range s.torrents {
		torrents = append(torrents, torrent)
	}
	s.mu.Unlock()

	var errv []error
	for _, listener := range listeners {
		if err := listener.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	for _, torrent := range torrents {
		torrent.drop()
	}
	s.cancel()
	s.wg.Wait()
	close(s.alerts)
	return errors.Join(errv...)
}
