// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/runtimex"
)

// StackConfig contains configuration for creating a new network stack.
type StackConfig struct {
	// Addresses contains the IP addresses for this stack.
	//
	// The config is invalid if there is not at least one address.
	Addresses []string

	// ClientResolvers optionally specifies resolvers for client stacks.
	ClientResolvers []string

	// DNSOverUDPHandler optionally specifies a handler for DNS-over-UDP.
	DNSOverUDPHandler DNSHandler

	// DomainNames contains the optional domain names associated with this stack.
	//
	// If there are associated domain names, we will register them into
	// the scenario DNS database along with the stack addresses.
	DomainNames []string

	// HTTPHandler optionally specifies a handler for serving HTTP.
	HTTPHandler http.Handler

	// HTTPPort optionally specifies the TCP port where to serve HTTP.
	//
	// A zero value implies port 80.
	HTTPPort uint16
}

// validate returns an error if the configuration is not valid.
func (cfg *StackConfig) validate() error {
	if len(cfg.Addresses) < 1 {
		return errors.New("at least one address is required")
	}
	return nil
}

// httpPort returns the TCP port where to serve HTTP.
func (cfg *StackConfig) httpPort() uint16 {
	if cfg.HTTPPort > 0 {
		return cfg.HTTPPort
	}
	return 80
}

// newBaseStack returns the base stack given a [*StackConfig].
func (s *Scenario) newBaseStack(cfg *StackConfig) (*Stack, error) {
	addrs := make([]netip.Addr, len(cfg.Addresses))
	for idx, addr := range cfg.Addresses {
		pa, err := netip.ParseAddr(addr)
		if err != nil {
			return nil, err
		}
		addrs[idx] = pa
	}
	stack := NewStack(addrs...)
	return stack, nil
}

// setupClientResolvers configures the client resolvers for the stack.
func (cfg *StackConfig) setupClientResolvers(stack *Stack) error {
	var ress []netip.AddrPort
	for _, addr := range cfg.ClientResolvers {
		paddr, err := netip.ParseAddrPort(net.JoinHostPort(addr, "53"))
		if err != nil {
			return err
		}
		ress = append(ress, paddr)
	}
	stack.SetResolvers(ress...)
	return nil
}

// closerFunc adapts a function to the [io.Closer] interface.
type closerFunc func() error

// Close implements [io.Closer].
func (fx closerFunc) Close() error {
	return fx()
}

// mustSetupDNSOverUDP configures the DNS-over-UDP handler for the stack.
//
// We bind one server to each stack address such that responses carry
// the concrete address the query was sent to.
func (s *Scenario) mustSetupDNSOverUDP(stack *Stack, cfg *StackConfig) {
	for _, addr := range stack.Addresses() {
		endpoint := netip.AddrPortFrom(addr, 53)
		conn := runtimex.Try1(stack.ListenPacket(
			context.Background(), "udp", endpoint.String()))
		server := &dns.Server{
			PacketConn: conn,
			Handler:    cfg.DNSOverUDPHandler,
		}
		go server.ActivateAndServe()
		s.pool.Add(closerFunc(server.Shutdown))
	}
}

// mustSetupHTTPOverTCP configures the HTTP-over-TCP handler for the stack.
//
// Like for DNS, we bind one server to each stack address.
func (s *Scenario) mustSetupHTTPOverTCP(stack *Stack, cfg *StackConfig) {
	for _, addr := range stack.Addresses() {
		endpoint := netip.AddrPortFrom(addr, cfg.httpPort())
		listener := runtimex.Try1(stack.Listen(
			context.Background(), "tcp", endpoint.String()))
		srv := &http.Server{Handler: cfg.HTTPHandler}
		go srv.Serve(listener)
		s.pool.Add(srv)
	}
}
