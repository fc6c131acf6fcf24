// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/rbmk-project/btcore/netcore"
)

// errEndpointBlocked indicates the installed IP filter blocks a
// resolved tracker endpoint.
var errEndpointBlocked = errors.New("endpoint blocked by ip filter")

// admitOutbound reports whether we may dial the given candidate
// peer on behalf of the given torrent.
//
// Candidates with port zero are unroutable and dropped silently.
// Candidates rejected by the port policy or by the IP filter raise
// [PeerBlockedAlert] and are dropped. The torrent override only
// bypasses the IP filter, not the port policy.
func (s *Session) admitOutbound(torrent *Torrent, peer netip.AddrPort) bool {
	if peer.Port() == 0 {
		if s.logger != nil {
			s.logger.DebugContext(
				s.ctx,
				"peerUnroutable",
				slog.String("remoteAddr", peer.String()),
				slog.Time("t", time.Now()),
			)
		}
		return false
	}
	if s.portFilter != nil && s.portFilter.IsBlocked(peer.Port()) {
		s.blockPeer(peer, DirectionOutbound)
		return false
	}
	if !torrent.disableIPFilter && s.ipBlocked(peer.Addr()) {
		s.blockPeer(peer, DirectionOutbound)
		return false
	}
	return true
}

// admitTrackerEndpoint returns nil when we may contact the given
// already-resolved tracker endpoint on behalf of the given torrent,
// and an error wrapping [errEndpointBlocked] otherwise.
func (s *Session) admitTrackerEndpoint(torrent *Torrent, address string) error {
	if torrent.disableIPFilter {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// Not an IP literal: resolution has not happened yet and
		// the resolved endpoints will be checked individually.
		return nil
	}
	if s.ipBlocked(addr.Unmap()) {
		return fmt.Errorf("%w: %s", errEndpointBlocked, addr)
	}
	return nil
}

// newTrackerNetwork derives a network for announcing on behalf of
// the given torrent. The derived network shares the session network
// configuration and installs a [netcore.Network.DialFilter] that
// enforces the torrent's admission policy on every dialed endpoint,
// including endpoints reached through HTTP redirects.
func (s *Session) newTrackerNetwork(torrent *Torrent) *netcore.Network {
	return &netcore.Network{
		DialContextFunc:    s.netx.DialContextFunc,
		DialContextTimeout: s.netx.DialContextTimeout,
		DialFilter: func(ctx context.Context, network, address string) error {
			if filter := s.netx.DialFilter; filter != nil {
				if err := filter(ctx, network, address); err != nil {
					return err
				}
			}
			return s.admitTrackerEndpoint(torrent, address)
		},
		ListenFunc:             s.netx.ListenFunc,
		Logger:                 s.netx.Logger,
		LookupHostFunc:         s.netx.LookupHostFunc,
		LookupHostTimeout:      s.netx.LookupHostTimeout,
		NewDialerOrSingleton:   s.netx.NewDialerOrSingleton,
		NewResolverOrSingleton: s.netx.NewResolverOrSingleton,
		TimeNow:                s.netx.TimeNow,
		WrapConn:               s.netx.WrapConn,
	}
}
