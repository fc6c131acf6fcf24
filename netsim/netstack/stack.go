//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Network stack
//

// Package netstack implements the userspace network stacks
// used by the network simulation.
//
// Each [*Stack] owns one or more IP addresses and exchanges
// [*Packet] with the rest of the simulated network through its
// input and output channels. A stack provides the usual dial
// and listen operations returning [net.Conn], [net.Listener],
// and [net.PacketConn] implementations.
package netstack

import (
	"context"
	"log"
	"math"
	"net"
	"net/netip"
	"sync"

	"github.com/rbmk-project/btcore/netsim/packet"
)

// Stack models a network stack.
type Stack struct {
	// addrs contains the stack network addresses.
	addrs []netip.Addr

	// eof unblocks any blocking operation when the stack is closed.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once

	// input is the input channel for packets.
	input chan *Packet

	// nextport tracks the next available ephemeral port.
	nextport map[IPProtocol]uint16

	// output is the output channel for packets.
	output chan *Packet

	// portmu protects nextport and ports.
	portmu sync.RWMutex

	// ports contains the open ports.
	ports map[PortAddr]*Port

	// resolvers contains the optional DNS resolver endpoints
	// used to resolve domain names when dialing.
	resolvers []netip.AddrPort
}

// New creates a new [*Stack] instance owning the given addresses
// and starts a goroutine demuxing incoming traffic. Remember to
// invoke Close to stop any muxing/demuxing goroutine.
func New(addrs ...netip.Addr) *Stack {
	const firstEphemeralPort = 49152
	input, output := packet.NewNetworkDeviceIOChannels()
	ns := &Stack{
		addrs:   addrs,
		eof:     make(chan struct{}),
		eofOnce: sync.Once{},
		input:   input,
		nextport: map[IPProtocol]uint16{
			IPProtocolTCP: firstEphemeralPort,
			IPProtocolUDP: firstEphemeralPort,
		},
		output:    output,
		portmu:    sync.RWMutex{},
		ports:     map[PortAddr]*Port{},
		resolvers: nil,
	}
	go ns.demuxLoop()
	return ns
}

// Addresses returns the network stack addresses.
func (ns *Stack) Addresses() []netip.Addr {
	return append([]netip.Addr{}, ns.addrs...)
}

// SetResolvers configures the DNS resolver endpoints used by
// [*Stack.DialContext] and [*Stack.LookupHost] to resolve domain
// names. Without resolvers, dialing a domain name fails.
//
// This method IS NOT goroutine safe: configure resolvers before
// using the stack to dial or resolve.
func (ns *Stack) SetResolvers(epnts ...netip.AddrPort) {
	ns.resolvers = append([]netip.AddrPort{}, epnts...)
}

// EOF returns the channel to wait for the stack to close.
func (ns *Stack) EOF() <-chan struct{} {
	return ns.eof
}

// demuxLoop demuxes incoming traffic to the proper port.
func (ns *Stack) demuxLoop() {
	for {
		select {
		case <-ns.eof:
			return
		case pkt := <-ns.input:
			ns.demux(pkt)
		}
	}
}

// findPortLocked finds a port using the given address.
//
// The algorithm is as follows:
//
// 1. first try using the five tuple.
//
// 2. if not found, try using the three tuple, where
// the remote address is invalid.
//
// 3. if not found, use a five tuple where the
// local IP address is unspecified.
//
// 4. if not found, use a three tuple where the
// the remote address is invalid, and the IP local
// address is unspecified.
//
// 5. otherwise, return nil.
//
// The caller must hold the portmu lock.
func (ns *Stack) findPortLocked(pkt *Packet) *Port {
	// 1.
	addr := PortAddr{
		LocalAddr:  netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort),
		Protocol:   pkt.IPProtocol,
		RemoteAddr: netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort),
	}
	if port := ns.ports[addr]; port != nil {
		return port
	}

	// 2.
	addr = PortAddr{
		LocalAddr:  netip.AddrPortFrom(pkt.DstAddr, pkt.DstPort),
		Protocol:   pkt.IPProtocol,
		RemoteAddr: netip.AddrPort{},
	}
	if port := ns.ports[addr]; port != nil {
		return port
	}

	for _, ipAddr := range []netip.Addr{netip.IPv4Unspecified(), netip.IPv6Unspecified()} {
		// 3.
		addr = PortAddr{
			LocalAddr:  netip.AddrPortFrom(ipAddr, pkt.DstPort),
			Protocol:   pkt.IPProtocol,
			RemoteAddr: netip.AddrPortFrom(pkt.SrcAddr, pkt.SrcPort),
		}
		if port := ns.ports[addr]; port != nil {
			return port
		}

		// 4.
		addr = PortAddr{
			LocalAddr:  netip.AddrPortFrom(ipAddr, pkt.DstPort),
			Protocol:   pkt.IPProtocol,
			RemoteAddr: netip.AddrPort{},
		}
		if port := ns.ports[addr]; port != nil {
			return port
		}
	}

	return nil
}

// demux demuxes a single incoming [*Packet].
func (ns *Stack) demux(pkt *Packet) error {
	// Discard packet if the address is not local.
	if !ns.isLocalAddr(pkt.DstAddr) {
		return EHOSTUNREACH
	}

	// Find a route using the five tuple then fallback using
	// the three tuple for listening sockets.
	ns.portmu.RLock()
	port := ns.findPortLocked(pkt)
	ns.portmu.RUnlock()
	if port == nil {
		// A SYN for a closed TCP port elicits an RST so that
		// connecting to a closed port fails with ECONNREFUSED
		// rather than hanging until the dialing deadline.
		if pkt.IPProtocol == IPProtocolTCP && pkt.Flags == TCPFlagSYN {
			ns.reject(pkt)
		}
		return EHOSTUNREACH
	}

	// Actually deliver the packet to the port.
	select {
	case <-port.eof:
		return net.ErrClosed
	case <-ns.eof:
		return ENETDOWN
	case port.input <- pkt:
		return nil
	}
}

// reject responds to the given packet with an RST segment.
func (ns *Stack) reject(pkt *Packet) {
	const linuxDefaultTTL = 64
	rst := &Packet{
		TTL:        linuxDefaultTTL,
		SrcAddr:    pkt.DstAddr,
		DstAddr:    pkt.SrcAddr,
		IPProtocol: IPProtocolTCP,
		SrcPort:    pkt.DstPort,
		DstPort:    pkt.SrcPort,
		Flags:      TCPFlagRST,
		Payload:    nil,
	}
	select {
	case ns.output <- rst:
	case <-ns.eof:
	}
}

// Close closes the network stack and stops all traffic muxing/demuxing.
func (ns *Stack) Close() error {
	ns.eofOnce.Do(func() { close(ns.eof) })
	return nil
}

// Output returns the channel from which to read outgoing packets.
func (ns *Stack) Output() <-chan *Packet {
	return ns.output
}

// Input returns the channel where to write incoming packets.
func (ns *Stack) Input() chan<- *Packet {
	return ns.input
}

// ListenPacket creates a new listening [net.PacketConn].
func (ns *Stack) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	if _, err := familyForNetwork(network, IPProtocolUDP); err != nil {
		return nil, err
	}
	port, err := ns.listen(IPProtocolUDP, address)
	if err != nil {
		return nil, err
	}
	return NewUDPConn(port), nil
}

// Listen creates a new listening [net.Listener].
func (ns *Stack) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	if _, err := familyForNetwork(network, IPProtocolTCP); err != nil {
		return nil, err
	}
	port, err := ns.listen(IPProtocolTCP, address)
	if err != nil {
		return nil, err
	}
	return NewTCPListener(ns, port), nil
}

// addressFamily constrains the addresses a dial may use.
type addressFamily int

const (
	// familyANY accepts both IPv4 and IPv6 addresses.
	familyANY = addressFamily(iota)

	// familyINET accepts IPv4 addresses only.
	familyINET

	// familyINET6 accepts IPv6 addresses only.
	familyINET6
)

// contains returns whether the family contains the given address.
func (f addressFamily) contains(addr netip.Addr) bool {
	switch f {
	case familyINET:
		return addr.Is4()
	case familyINET6:
		return addr.Is6() && !addr.Is4In6()
	default:
		return true
	}
}

// familyForNetwork maps a Go network name ("tcp", "tcp4", "udp6", ...)
// to the corresponding address family, ensuring the network name is
// consistent with the expected IP protocol.
func familyForNetwork(network string, protocol IPProtocol) (addressFamily, error) {
	switch {
	case network == protocol.String():
		return familyANY, nil
	case network == protocol.String()+"4":
		return familyINET, nil
	case network == protocol.String()+"6":
		return familyINET6, nil
	default:
		return familyANY, EPROTONOSUPPORT
	}
}

// isLocalAddr returns true if the address is local to the stack.
func (ns *Stack) isLocalAddr(addr netip.Addr) bool {
	for _, a := range ns.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// listen creates a new listening [*Port].
func (ns *Stack) listen(protocol IPProtocol, address string) (*Port, error) {
	// Run while locking the available ports.
	ns.portmu.Lock()
	defer ns.portmu.Unlock()

	// Setup the local address handling the cases in which the
	// address and/or the port are the zero value.
	laddr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, EINVAL
	}
	if !laddr.Addr().IsUnspecified() && !ns.isLocalAddr(laddr.Addr()) {
		return nil, EADDRNOTAVAIL
	}
	if laddr.Port() <= 0 {
		lport, err := ns.newEphemeralPortNumberLocked(protocol)
		if err != nil {
			return nil, err
		}
		laddr = netip.AddrPortFrom(laddr.Addr(), lport)
	}

	// The remote address is always unspecified in this case.
	var raddr netip.AddrPort

	// Create the port proper and setup muxing traffic.
	return ns.newPortLocked(protocol, laddr, raddr)
}

// dial creates a new connected [*Port].
func (ns *Stack) dial(protocol IPProtocol, family addressFamily, address string) (*Port, error) {
	// Run while locking the available ports.
	ns.portmu.Lock()
	defer ns.portmu.Unlock()

	// Setup the remote address and make sure it is actually specified.
	raddr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, EINVAL
	}
	if raddr.Addr().IsUnspecified() || raddr.Port() <= 0 {
		return nil, EHOSTUNREACH
	}
	if !family.contains(raddr.Addr()) {
		return nil, EAFNOSUPPORT
	}

	// Pick a local address belonging to the same family
	// as the remote address we are dialing.
	var ipAddrLocal netip.Addr
	for _, addr := range ns.addrs {
		if raddr.Addr().Is4() == addr.Is4() {
			ipAddrLocal = addr
			break
		}
	}
	if !ipAddrLocal.IsValid() {
		return nil, EAFNOSUPPORT
	}

	// Construct the local address and use a local port.
	lport, err := ns.newEphemeralPortNumberLocked(protocol)
	if err != nil {
		return nil, err
	}
	laddr := netip.AddrPortFrom(ipAddrLocal, lport)

	// Create the port proper and setup muxing traffic.
	return ns.newPortLocked(protocol, laddr, raddr)
}

// newEphemeralPortNumberLocked opens a new local port, if possible, or returns an error.
//
// You must invoke this method while holding the portmu lock.
func (ns *Stack) newEphemeralPortNumberLocked(protocol IPProtocol) (uint16, error) {
	if ns.nextport[protocol] >= math.MaxUint16 {
		return 0, EADDRINUSE
	}
	port := ns.nextport[protocol]
	ns.nextport[protocol] = port + 1
	return port, nil
}

// newPortLocked creates a new [*Port] instance.
//
// You must invoke this method while holding the portmu lock.
func (ns *Stack) newPortLocked(protocol IPProtocol, laddr, raddr netip.AddrPort) (*Port, error) {
	// Create the port address and make sure we can actually create the port.
	addr := &PortAddr{
		LocalAddr:  laddr,
		Protocol:   protocol,
		RemoteAddr: raddr,
	}
	port := NewPort(ns, addr)
	if _, ok := ns.ports[*addr]; ok {
		return nil, EADDRINUSE
	}

	// Remember the port and routing traffic
	log.Printf("OPEN %s", addr.String())
	ns.ports[*addr] = port
	go ns.muxOutgoingTraffic(port)
	return port, nil
}

// muxOutgoingTraffic merges the traffic emitted by all ports.
func (ns *Stack) muxOutgoingTraffic(port *Port) {
	for {
		select {
		case <-port.eof:
			return
		case <-ns.eof:
			return
		case pkt := <-port.output:
			ns.output <- pkt
		}
	}
}

// ClosePort implements [PortStack].
func (ns *Stack) ClosePort(addr *PortAddr) {
	log.Printf("CLOSE %s", addr.String())
	ns.portmu.Lock()
	delete(ns.ports, *addr)
	ns.portmu.Unlock()
}

// NewTCPConn implements [TCPListenerStack].
func (ns *Stack) NewTCPConn(laddr, raddr netip.AddrPort) (*TCPConn, error) {
	// Run while locking the available ports.
	ns.portmu.Lock()
	defer ns.portmu.Unlock()

	// Create the port proper and setup muxing traffic.
	port, err := ns.newPortLocked(IPProtocolTCP, laddr, raddr)
	if err != nil {
		return nil, err
	}
	return NewTCPConn(port), nil
}
