//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
//
// Conn wrapper.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/common/errclass"
)

// connLocalAddr is a safe way to get the local address of a connection.
func connLocalAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.LocalAddr() != nil {
		return conn.LocalAddr()
	}
	return emptyAddr{}
}

// connRemoteAddr is a safe way to get the remote address of a connection.
func connRemoteAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr()
	}
	return emptyAddr{}
}

// emptyAddr is an empty [net.Addr].
type emptyAddr struct{}

// Network implements [net.Addr].
func (emptyAddr) Network() string { return "" }

// String implements [net.Addr].
func (emptyAddr) String() string { return "" }

// maybeWrapConn wraps a connection when it makes sense to do so.
func (nx *Network) maybeWrapConn(ctx context.Context, conn net.Conn) net.Conn {
	if conn != nil && nx.Logger != nil && nx.WrapConn != nil {
		conn = nx.WrapConn(ctx, nx, conn)
	}
	return conn
}

// WrapConn wraps a given [net.Conn] to emit structured logs.
func WrapConn(ctx context.Context, netx *Network, conn net.Conn) net.Conn {
	laddr := connLocalAddr(conn)
	return &connWrapper{
		ctx:       ctx,
		closeonce: sync.Once{},
		conn:      conn,
		laddr:     laddr.String(),
		netx:      netx,
		protocol:  laddr.Network(),
		raddr:     connRemoteAddr(conn).String(),
	}
}

// connWrapper wraps a [net.Conn] and emits I/O events.
//
// Each operation produces a pair of events (e.g., readStart and
// readDone) carrying the endpoints of the connection, such that
// one can correlate events with the dial that created the conn.
type connWrapper struct {
	ctx       context.Context // only used for logging
	closeonce sync.Once
	conn      net.Conn
	laddr     string
	netx      *Network // may contain nil logger!
	protocol  string
	raddr     string
}

// emitStart emits the event opening an I/O operation.
func (c *connWrapper) emitStart(event string, t0 time.Time, attrs ...slog.Attr) {
	if c.netx.Logger == nil {
		return
	}
	c.emit(event, append(attrs, slog.Time("t", t0))...)
}

// emitDone emits the event closing an I/O operation that
// started at t0 and produced the given error, if any.
func (c *connWrapper) emitDone(event string, t0 time.Time, err error, attrs ...slog.Attr) {
	if c.netx.Logger == nil {
		return
	}
	attrs = append(attrs,
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
	)
	c.emit(event, append(attrs,
		slog.Time("t0", t0),
		slog.Time("t", c.netx.timeNow()),
	)...)
}

// emit emits an event attaching the conn endpoint attributes.
func (c *connWrapper) emit(event string, attrs ...slog.Attr) {
	c.netx.Logger.LogAttrs(
		c.ctx,
		slog.LevelInfo,
		event,
		append([]slog.Attr{
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
		}, attrs...)...,
	)
}

// Close implements [net.Conn].
func (c *connWrapper) Close() (err error) {
	c.closeonce.Do(func() {
		t0 := c.netx.timeNow()
		c.emitStart("closeStart", t0)
		err = c.conn.Close()
		c.emitDone("closeDone", t0, err)
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *connWrapper) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Read implements [net.Conn].
func (c *connWrapper) Read(buf []byte) (int, error) {
	t0 := c.netx.timeNow()
	c.emitStart("readStart", t0, slog.Int("ioBufferSize", len(buf)))

	count, err := c.conn.Read(buf)

	c.emitDone("readDone", t0, err, slog.Int("ioBytesCount", count))
	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *connWrapper) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (c *connWrapper) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *connWrapper) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *connWrapper) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Write implements [net.Conn].
func (c *connWrapper) Write(data []byte) (int, error) {
	t0 := c.netx.timeNow()
	c.emitStart("writeStart", t0, slog.Int("ioBufferSize", len(data)))

	count, err := c.conn.Write(data)

	c.emitDone("writeDone", t0, err, slog.Int("ioBytesCount", count))
	return count, err
}
