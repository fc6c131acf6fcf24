//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Cleartext listener.
//

package netcore

import (
	"context"
	"log/slog"
	"net"

	"github.com/rbmk-project/common/errclass"
)

// Listen creates a listening TCP socket bound to the given address.
func (nx *Network) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	// emit structured event before listening
	t0 := nx.timeNow()
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"listenStart",
			slog.String("localAddr", address),
			slog.String("protocol", network),
			slog.Time("t", t0),
		)
	}

	// create the listening socket
	listener, err := nx.doListen(ctx, network, address)

	// emit structured event after listening
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"listenDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", listenerAddr(listener, address)),
			slog.String("protocol", network),
			slog.Time("t0", t0),
			slog.Time("t", nx.timeNow()),
		)
	}
	return listener, err
}

// doListen creates the listener using the configured function.
func (nx *Network) doListen(ctx context.Context, network, address string) (net.Listener, error) {
	// if there's an user provided listen func, use it
	if nx.ListenFunc != nil {
		return nx.ListenFunc(ctx, network, address)
	}

	// otherwise use the net package
	config := &net.ListenConfig{}
	return config.Listen(ctx, network, address)
}

// listenerAddr returns the actual address a listener is bound to,
// which matters when listening on port zero, falling back to the
// requested address when there is no listener.
func listenerAddr(listener net.Listener, fallback string) string {
	if listener != nil && listener.Addr() != nil {
		return listener.Addr().String()
	}
	return fallback
}
