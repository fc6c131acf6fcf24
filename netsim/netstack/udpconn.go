//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UDP Conn/PacketConn.
//

package netstack

import (
	"net"
	"time"
)

// UDPConn is a UDP connection exposing both the [net.PacketConn]
// and the connected [net.Conn] views of an underlying [*Port].
//
// The zero value is invalid; construct using [NewUDPConn].
type UDPConn struct {
	port *Port
}

// Ensure [*UDPConn] implements the expected interfaces.
var (
	_ net.Conn       = &UDPConn{}
	_ net.PacketConn = &UDPConn{}
)

// NewUDPConn creates a new UDP connection.
func NewUDPConn(port *Port) *UDPConn {
	return &UDPConn{port: port}
}

// Close implements [net.PacketConn] and [net.Conn].
func (c *UDPConn) Close() error {
	return c.port.Close()
}

// LocalAddr implements [net.PacketConn] and [net.Conn].
func (c *UDPConn) LocalAddr() net.Addr {
	return c.port.LocalAddr()
}

// RemoteAddr implements [net.Conn].
func (c *UDPConn) RemoteAddr() net.Addr {
	return c.port.RemoteAddr()
}

// Read implements [net.Conn].
func (c *UDPConn) Read(buf []byte) (int, error) {
	count, _, err := c.port.ReadFrom(buf)
	return count, err
}

// ReadFrom implements [net.PacketConn].
func (c *UDPConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	return c.port.ReadFrom(buf)
}

// Write implements [net.Conn].
func (c *UDPConn) Write(data []byte) (int, error) {
	return c.port.Write(data)
}

// WriteTo implements [net.PacketConn].
func (c *UDPConn) WriteTo(pkt []byte, addr net.Addr) (int, error) {
	return c.port.WriteTo(pkt, addr)
}

// SetDeadline implements [net.PacketConn] and [net.Conn].
func (c *UDPConn) SetDeadline(t time.Time) error {
	return c.port.SetDeadline(t)
}

// SetReadDeadline implements [net.PacketConn] and [net.Conn].
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return c.port.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.PacketConn] and [net.Conn].
func (c *UDPConn) SetWriteDeadline(t time.Time) error {
	return c.port.SetWriteDeadline(t)
}
