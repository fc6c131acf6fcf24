// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"context"
	"net"
	"net/http"
)

// NewHTTPTransport creates an [*http.Transport] configured to
// dial and resolve using the given stack.
func (s *Scenario) NewHTTPTransport(stack *Stack) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return stack.DialContext(ctx, network, addr)
		},
	}
}
