//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
//
// Cleartext conn dialer.
//

package netcore

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/rbmk-project/common/errclass"
)

// ErrNoAvailableEndpoints indicates there were no endpoints to dial.
var ErrNoAvailableEndpoints = errors.New("no available endpoints")

// DialContext establishes a new TCP/UDP connection.
func (nx *Network) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// resolve the endpoints to connect to
	endpoints, err := nx.maybeLookupEndpoint(ctx, address)
	if err != nil {
		return nil, err
	}

	// sequentially attempt with each available endpoint
	return nx.sequentialDial(ctx, network, nx.dialLog, endpoints...)
}

// dialContextFunc is a function used to dial a connection.
type dialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// sequentialDial attempts to dial the endpoints in sequence until one
// of them succeeds. It returns the first successfully established network
// connection, on success, and the union of all errors, otherwise. An
// endpoint refused by the optional DialFilter is skipped without dialing
// and its error joins the overall error.
func (nx *Network) sequentialDial(
	ctx context.Context,
	network string,
	fx dialContextFunc,
	endpoints ...string,
) (net.Conn, error) {
	// TODO(bassosimone): decide whether we want to sort IPv4 before IPv6
	// here, and whether we want another method for happy eyeballs.
	var errv []error
	for _, endpoint := range endpoints {
		if err := nx.admitEndpoint(ctx, network, endpoint); err != nil {
			errv = append(errv, err)
			continue
		}
		conn, err := fx(ctx, network, endpoint)
		if conn != nil && err == nil {
			return conn, nil
		}
		errv = append(errv, err)
	}
	if len(errv) <= 0 {
		errv = append(errv, ErrNoAvailableEndpoints)
	}
	return nil, errors.Join(errv...)
}

// admitEndpoint consults the optional DialFilter about an endpoint.
func (nx *Network) admitEndpoint(ctx context.Context, network, endpoint string) error {
	if nx.DialFilter == nil {
		return nil
	}
	return nx.DialFilter(ctx, network, endpoint)
}

// dialLog dials a single endpoint and emits structured logs.
func (nx *Network) dialLog(ctx context.Context, network, address string) (net.Conn, error) {
	// emit structured event before dialing
	t0 := nx.timeNow()
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"connectStart",
			slog.String("protocol", network),
			slog.String("remoteAddr", address),
			slog.Time("t", t0),
		)
	}

	// establish the connection
	conn, err := nx.dialNet(ctx, network, address)

	// emit structured event after dialing
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"connectDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", connLocalAddr(conn).String()),
			slog.String("protocol", network),
			slog.String("remoteAddr", address),
			slog.Time("t0", t0),
			slog.Time("t", nx.timeNow()),
		)
	}

	// possibly wrap the connection to emit I/O events
	return nx.maybeWrapConn(ctx, conn), err
}

// dialNet dials a single endpoint using the configured dialer.
func (nx *Network) dialNet(ctx context.Context, network, address string) (net.Conn, error) {
	// enforce the optional per-connection timeout
	if nx.DialContextTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nx.DialContextTimeout)
		defer cancel()
	}

	// if there's an user provided dialer func, use it
	if nx.DialContextFunc != nil {
		return nx.DialContextFunc(ctx, network, address)
	}

	// otherwise use the net package
	return nx.newDialer().DialContext(ctx, network, address)
}

// newDialer returns the [*net.Dialer] to use.
func (nx *Network) newDialer() *net.Dialer {
	if nx.NewDialerOrSingleton != nil {
		return nx.NewDialerOrSingleton()
	}
	child := &net.Dialer{}
	child.SetMultipathTCP(false)
	return child
}
