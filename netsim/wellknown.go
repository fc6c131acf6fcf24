//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Well-known host configurations for the hosts composing a
// BitTorrent swarm used in network testing scenarios.
//

package netsim

import "net/http"

// MustNewDNSStack creates a new stack simulating the scenario resolver.
//
// The resolver serves the scenario DNS database over UDP, meaning that
// it knows the domain names of all the stacks in the scenario.
func (s *Scenario) MustNewDNSStack() *Stack {
	return s.MustNewStack(&StackConfig{
		DomainNames: []string{
			"dns.example.com",
		},
		Addresses: []string{
			"10.0.0.53",
		},
		DNSOverUDPHandler: s.DNSHandler(),
	})
}

// MustNewTrackerStack creates a new stack simulating a BitTorrent
// tracker reachable over both IPv4 and IPv6.
//
// The given handler serves HTTP on port 8080.
func (s *Scenario) MustNewTrackerStack(handler http.Handler) *Stack {
	return s.MustNewStack(&StackConfig{
		DomainNames: []string{
			"tracker.example.com",
		},
		Addresses: []string{
			"10.0.0.2",
			"ff::dead:beef",
		},
		HTTPHandler: handler,
		HTTPPort:    8080,
	})
}

// MustNewPeerStack creates a new stack simulating a BitTorrent
// peer bound to the given IP address.
//
// The caller is responsible for listening and speaking the peer
// wire protocol using the returned stack.
func (s *Scenario) MustNewPeerStack(addr string) *Stack {
	return s.MustNewStack(&StackConfig{
		Addresses: []string{
			addr,
		},
	})
}

// MustNewClientStack creates a new client stack with standard testing
// configuration.
//
// The stack uses 50.0.0.1 and ff::1337 as its addresses, so that it
// can reach both IPv4 and IPv6 hosts, and it uses the address of the
// [*Scenario.MustNewDNSStack] stack as its default resolver.
func (s *Scenario) MustNewClientStack() *Stack {
	return s.MustNewStack(&StackConfig{
		Addresses: []string{
			"50.0.0.1",
			"ff::1337",
		},
		ClientResolvers: []string{
			"10.0.0.53",
		},
	})
}
