//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Definition of Network.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Network allows dialing, listening, and resolving TCP/UDP connections.
//
// The zero value is ready to use.
//
// A [*Network] is safe for concurrent use by multiple goroutines as long as
// you don't modify its fields after construction and the underlying fields you
// may set (e.g., DialContextFunc) are also safe.
type Network struct {
	// DialContextFunc is the optional dialer for creating new
	// TCP and UDP connections. If this field is nil, the default
	// dialer from the [net] package will be used.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// DialFilter is the optional admission policy consulted for each
	// candidate endpoint before dialing it. Returning a non-nil error
	// skips the endpoint, and the error joins the overall dial error
	// when no candidate succeeds. If this field is nil, every
	// endpoint is admitted.
	DialFilter func(ctx context.Context, network, address string) error

	// ListenFunc is the optional function for creating listening
	// TCP sockets. If this field is nil, we use the default
	// [*net.ListenConfig] from the [net] package.
	ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// LookupHostFunc is the optional function to resolve a domain
	// name to IP addresses. If this field is nil, we use the
	// default [*net.Resolver] from the [net] package.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// WrapConn is an optional function to wrap a connection to emit
	// structured logs. [WrapConn] is the default wrapper to use.
	WrapConn func(ctx context.Context, netx *Network, conn net.Conn) net.Conn

	// LookupHostTimeout is the optional timeout to use for limiting
	// the maximum time spent resolving a domain name.
	LookupHostTimeout time.Duration

	// DialContextTimeout is the optional timeout to use for limiting
	// the maximum time spent creating a single connection.
	DialContextTimeout time.Duration

	// NewResolverOrSingleton is the optional function that returns
	// the [*net.Resolver] to use when LookupHostFunc is not set. As the
	// name suggests, this function may either create a new [*net.Resolver]
	// for each call or just return a singleton instance. When this method
	// is not set, we use an internal zero-initialized, static [*net.Resolver].
	NewResolverOrSingleton func() *net.Resolver

	// NewDialerOrSingleton is the optional function that returns
	// the [*net.Dialer] to use when DialContextFunc is not set. As the
	// name suggests, this function may either create a new [*net.Dialer]
	// for each call or just return a singleton instance. When this method
	// is not set, we use an internal, static [*net.Dialer] where
	// support for Multipath TCP has been disabled. We disable Multipath
	// TCP because we focus on protocol-level reproducibility.
	NewDialerOrSingleton func() *net.Dialer
}

// DefaultNetwork is the default [*Network] used by this package.
var DefaultNetwork = &Network{}

// timeNow is a function that returns the current time.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}
