// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"

	"github.com/rbmk-project/btcore/netsim"
	"github.com/rbmk-project/btcore/netsim/censor"
	"github.com/zeebo/bencode"
)

// This example shows how to use [censor.DNatter] to simulate a
// middlebox transparently steering announce traffic to a rogue
// tracker. The client believes it is talking to the legitimate
// tracker endpoint while the response comes from the rogue one.
func Example_trackerHijack() {
	// Create scenario
	scenario := netsim.NewScenario()
	defer scenario.Close()

	// Create and attach the legitimate tracker stack.
	scenario.Attach(scenario.MustNewTrackerStack(http.HandlerFunc(
		func(rw http.ResponseWriter, req *http.Request) {
			rw.Write([]byte("d8:intervali1800e5:peers0:e"))
		})))

	// Create and attach the rogue tracker stack.
	scenario.Attach(scenario.MustNewStack(&netsim.StackConfig{
		Addresses: []string{"10.0.0.66"},
		HTTPHandler: http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			rw.Write([]byte("d14:failure reason20:unregistered torrente"))
		}),
		HTTPPort: 8080,
	}))

	// Configure DNAT to steer the client's tracker traffic
	// towards the rogue tracker.
	scenario.Router().AddFilter(censor.NewDNatter(
		netip.MustParseAddr("50.0.0.1"),           // source addr
		netip.MustParseAddrPort("10.0.0.2:8080"),  // target dest epnt
		netip.MustParseAddrPort("10.0.0.66:8080"), // repl dest epnt
	))

	// Create and attach the client stack.
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	// Create the HTTP client
	clientTxp := scenario.NewHTTPTransport(clientStack)
	defer clientTxp.CloseIdleConnections()
	clientHTTP := &http.Client{Transport: clientTxp}

	// Announce to the legitimate tracker endpoint.
	resp, err := clientHTTP.Get("http://10.0.0.2:8080/announce")
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	// Decode and print the failure returned by the rogue tracker.
	var announce struct {
		FailureReason string `bencode:"failure reason"`
	}
	if err := bencode.DecodeBytes(body, &announce); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("failure reason: %s\n", announce.FailureReason)

	// Output:
	// failure reason: unregistered torrent
}
