//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Dialer implementation
//

package netstack

import (
	"context"
	"errors"
	"net"

	"github.com/rbmk-project/btcore/netcore"
)

// ErrNoConfiguredResolvers is returned when there are no configured resolvers.
var ErrNoConfiguredResolvers = errors.New("no configured resolvers")

// DialContext dials a network address.
//
// The network must be one of "tcp", "tcp4", "tcp6", "udp", "udp4",
// or "udp6". When the address contains a domain name, we resolve it
// using the resolvers configured with [*Stack.SetResolvers] and we
// attempt to dial each resolved endpoint in sequence.
func (ns *Stack) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// Short circuit for the case where we're dialing for an IP address
	ipAddr, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(ipAddr) != nil {
		return ns.dialContext(ctx, network, address)
	}

	// Otherwise, bail if there are no configured resolvers.
	if len(ns.resolvers) <= 0 {
		return nil, ErrNoConfiguredResolvers
	}

	// Configure netcore to perform the actual resolve-then-dial.
	netx := &netcore.Network{
		DialContextFunc: ns.dialContext,
		LookupHostFunc:  ns.LookupHost,
	}
	return netx.DialContext(ctx, network, address)
}

// dialContext dials a TCP/UDP endpoint whose address is an IP address.
func (ns *Stack) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// Attempt UDP first since for UDP there is no handshake
	// and the connection is immediately usable.
	if family, err := familyForNetwork(network, IPProtocolUDP); err == nil {
		port, err := ns.dial(IPProtocolUDP, family, address)
		if err != nil {
			return nil, err
		}
		return NewUDPConn(port), nil
	}

	// Otherwise this must be a TCP network name.
	family, err := familyForNetwork(network, IPProtocolTCP)
	if err != nil {
		return nil, err
	}
	port, err := ns.dial(IPProtocolTCP, family, address)
	if err != nil {
		return nil, err
	}
	conn := NewTCPConn(port)
	if err := conn.Connect(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
