//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// DNS-over-UDP stub resolver.
//

package netstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ErrHostNotFound is returned when a lookup returns no addresses.
//
// Its message uses the canonical "no such host" suffix so that
// error classification recognizes the DNS failure.
var ErrHostNotFound = errors.New("no such host")

// lookupTimeout is the default timeout for a single DNS round trip
// used when the context does not carry its own deadline.
const lookupTimeout = 4 * time.Second

// LookupHost resolves a domain name using the resolvers configured
// with [*Stack.SetResolvers], querying for both A and AAAA records
// over DNS-over-UDP. An IP address input short circuits the lookup.
func (ns *Stack) LookupHost(ctx context.Context, domain string) ([]string, error) {
	// Handle the case where domain is already an IP address.
	if net.ParseIP(domain) != nil {
		return []string{domain}, nil
	}

	// Without resolvers there is nothing we can do.
	if len(ns.resolvers) <= 0 {
		return nil, ErrNoConfiguredResolvers
	}

	// Try each resolver in sequence and stop at the first
	// resolver providing usable answers.
	var errv []error
	for _, reso := range ns.resolvers {
		addrs, err := ns.lookupHostWithResolver(ctx, domain, reso.String())
		if err != nil {
			errv = append(errv, err)
			continue
		}
		return addrs, nil
	}
	return nil, errors.Join(errv...)
}

// lookupHostWithResolver queries a single resolver endpoint for
// the A and AAAA records of the given domain.
func (ns *Stack) lookupHostWithResolver(ctx context.Context, domain, endpoint string) ([]string, error) {
	var (
		addrs []string
		errv  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := ns.queryUDP(ctx, endpoint, domain, qtype)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		// Only collect records matching the query type since the
		// server may also return related records (e.g., the AAAA
		// records of a name when asked for its A records).
		for _, rr := range resp.Answer {
			switch rr := rr.(type) {
			case *dns.A:
				if qtype == dns.TypeA {
					addrs = append(addrs, rr.A.String())
				}
			case *dns.AAAA:
				if qtype == dns.TypeAAAA {
					addrs = append(addrs, rr.AAAA.String())
				}
			}
		}
	}
	if len(addrs) <= 0 {
		if len(errv) > 0 {
			return nil, errors.Join(errv...)
		}
		return nil, fmt.Errorf("lookup %s: %w", domain, ErrHostNotFound)
	}
	return addrs, nil
}

// queryUDP performs a single DNS-over-UDP round trip.
func (ns *Stack) queryUDP(ctx context.Context, endpoint, domain string, qtype uint16) (*dns.Msg, error) {
	// Create the connection with the resolver.
	conn, err := ns.dialContext(ctx, "udp", endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Arrange for the round trip to eventually time out.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(lookupTimeout)
	}
	conn.SetDeadline(deadline)

	// Create and send the query.
	query := new(dns.Msg)
	query.SetQuestion(dns.CanonicalName(domain), qtype)
	query.RecursionDesired = true
	dnsconn := &dns.Conn{Conn: conn}
	if err := dnsconn.WriteMsg(query); err != nil {
		return nil, err
	}

	// Receive and validate the response.
	resp, err := dnsconn.ReadMsg()
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("lookup %s: %w", domain, ErrHostNotFound)
	}
	return resp, nil
}
