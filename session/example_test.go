// SPDX-License-Identifier: GPL-3.0-or-later

package session_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"

	"github.com/rbmk-project/btcore/ipfilter"
	"github.com/rbmk-project/btcore/netcore"
	"github.com/rbmk-project/btcore/netsim"
	"github.com/rbmk-project/btcore/session"
)

// This example shows how the installed IP filter gates outbound
// peer connections: blocked candidates raise an alert and are never
// dialed, while admitted candidates proceed to the handshake.
func Example_ipFilter() {
	// Create the network simulation scenario.
	scenario := netsim.NewScenario()
	defer scenario.Close()

	// The swarm info hash everyone agrees upon.
	var infoHash session.InfoHash
	copy(infoHash[:], "example torrent hash")

	// Start a remote peer outside the blocked range that accepts
	// one connection and completes the handshake.
	peerStack := scenario.MustNewPeerStack("60.0.0.3")
	scenario.Attach(peerStack)
	listener, err := peerStack.Listen(context.Background(), "tcp", "60.0.0.3:6881")
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 68)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write(rawHandshake(infoHash, "-EX0001-000000000000"))
		io.Copy(io.Discard, conn)
	}()

	// Create the session using the simulated network.
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)
	sess, err := session.New(&session.Config{
		Network: &netcore.Network{
			DialContextFunc: clientStack.DialContext,
			ListenFunc:      clientStack.Listen,
			LookupHostFunc:  clientStack.LookupHost,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	// Install a filter blocking the 60.0.0.0-60.0.0.2 range.
	filter := ipfilter.New()
	if err := filter.AddRule(
		netip.MustParseAddr("60.0.0.0"),
		netip.MustParseAddr("60.0.0.2"),
		ipfilter.Blocked,
	); err != nil {
		log.Fatal(err)
	}
	sess.SetIPFilter(filter)

	// Add the torrent, then feed it one blocked and one admitted
	// candidate, printing the resulting alerts.
	torrent, err := sess.AddTorrent(&session.TorrentSpec{InfoHash: infoHash})
	if err != nil {
		log.Fatal(err)
	}
	torrent.AddPeers(netip.MustParseAddrPort("60.0.0.1:6881"))
	fmt.Println(<-sess.Alerts())
	torrent.AddPeers(netip.MustParseAddrPort("60.0.0.3:6881"))
	fmt.Println(<-sess.Alerts())

	// Output:
	// peer blocked: 60.0.0.1:6881 (outbound)
	// peer connected: 60.0.0.3:6881 (outbound)
}

// This example shows how the session treats a tracker resolving to
// a blocked address: the endpoint is skipped as if the tracker were
// unreachable and no request is sent at all.
func Example_blockedTracker() {
	// Create the network simulation scenario.
	scenario := netsim.NewScenario()
	defer scenario.Close()

	// The swarm info hash everyone agrees upon.
	var infoHash session.InfoHash
	copy(infoHash[:], "example torrent hash")

	// The tracker domain name resolves inside the blocked range.
	scenario.Attach(scenario.MustNewDNSStack())
	scenario.Attach(scenario.MustNewStack(&netsim.StackConfig{
		DomainNames: []string{"tracker.example.com"},
		Addresses:   []string{"60.0.0.1"},
		HTTPHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("d8:intervali1800e5:peers0:e"))
		}),
		HTTPPort: 8080,
	}))

	// Create the session using the simulated network.
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)
	sess, err := session.New(&session.Config{
		Network: &netcore.Network{
			DialContextFunc: clientStack.DialContext,
			ListenFunc:      clientStack.Listen,
			LookupHostFunc:  clientStack.LookupHost,
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Close()

	// Install a filter blocking the 60.0.0.0-60.0.0.2 range.
	filter := ipfilter.New()
	if err := filter.AddRule(
		netip.MustParseAddr("60.0.0.0"),
		netip.MustParseAddr("60.0.0.2"),
		ipfilter.Blocked,
	); err != nil {
		log.Fatal(err)
	}
	sess.SetIPFilter(filter)

	// Announce and wait for the tracker to be skipped.
	if _, err := sess.AddTorrent(&session.TorrentSpec{
		InfoHash: infoHash,
		Trackers: []string{"http://tracker.example.com:8080/announce"},
	}); err != nil {
		log.Fatal(err)
	}
	for alert := range sess.Alerts() {
		if skipped, ok := alert.(session.TrackerSkippedAlert); ok {
			fmt.Println(skipped)
			break
		}
	}

	// Output:
	// tracker skipped: http://tracker.example.com:8080/announce (60.0.0.1 blocked)
}
