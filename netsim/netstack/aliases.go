//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Aliases for the packet subpackage.
//

package netstack

import "github.com/rbmk-project/btcore/netsim/packet"

// Packet is an alias for [packet.Packet].
type Packet = packet.Packet

// IPProtocol is an alias for [packet.IPProtocol].
type IPProtocol = packet.IPProtocol

// TCPFlags is an alias for [packet.TCPFlags].
type TCPFlags = packet.TCPFlags

const (
	// IPProtocolTCP is an alias for [packet.IPProtocolTCP].
	IPProtocolTCP = packet.IPProtocolTCP

	// IPProtocolUDP is an alias for [packet.IPProtocolUDP].
	IPProtocolUDP = packet.IPProtocolUDP

	// TCPFlagFIN is an alias for [packet.TCPFlagFIN].
	TCPFlagFIN = packet.TCPFlagFIN

	// TCPFlagSYN is an alias for [packet.TCPFlagSYN].
	TCPFlagSYN = packet.TCPFlagSYN

	// TCPFlagRST is an alias for [packet.TCPFlagRST].
	TCPFlagRST = packet.TCPFlagRST

	// TCPFlagPSH is an alias for [packet.TCPFlagPSH].
	TCPFlagPSH = packet.TCPFlagPSH

	// TCPFlagACK is an alias for [packet.TCPFlagACK].
	TCPFlagACK = packet.TCPFlagACK
)
