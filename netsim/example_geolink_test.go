// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/rbmk-project/btcore/connpool"
	"github.com/rbmk-project/btcore/netsim"
	"github.com/rbmk-project/btcore/netsim/geolink"
)

// This example shows how to use [geolink.Extend] to simulate a
// client announcing to a geographically distant tracker. Packets
// in both directions experience the configured propagation delay.
func Example_geolink() {
	// Create a pool to close resources when done.
	cpool := connpool.New()
	defer cpool.Close()

	// Create the tracker stack.
	trackerAddr := netip.MustParseAddr("10.0.0.2")
	trackerStack := netsim.NewStack(trackerAddr)
	cpool.Add(trackerStack)

	// Create the client stack.
	clientAddr := netip.MustParseAddr("50.0.0.1")
	clientStack := netsim.NewStack(clientAddr)
	cpool.Add(clientStack)

	// Link the client to the tracker through a link adding
	// two milliseconds of propagation delay each way.
	link := netsim.NewLink(clientStack, geolink.Extend(trackerStack, &geolink.Config{
		Delay: 2 * time.Millisecond,
	}))
	cpool.Add(link)

	// Create a context with a watchdog timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Create the tracker HTTP server.
	trackerEndpoint := netip.AddrPortFrom(trackerAddr, 8080)
	listener, err := trackerStack.Listen(ctx, "tcp", trackerEndpoint.String())
	if err != nil {
		log.Fatal(err)
	}
	cpool.Add(listener)
	trackerHTTP := &http.Server{
		Handler: http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			rw.Write([]byte("d8:intervali1800e5:peers0:e"))
		}),
	}
	go trackerHTTP.Serve(listener)
	cpool.Add(trackerHTTP)

	// Create the HTTP client
	clientTxp := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := clientStack.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			cpool.Add(conn)
			return conn, nil
		},
	}
	clientHTTP := &http.Client{Transport: clientTxp}

	// Measure the announce round trip.
	t0 := time.Now()
	resp, err := clientHTTP.Get("http://10.0.0.2:8080/announce")
	if err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(t0)
	cpool.Add(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	// Print the response body and whether we observed the delay.
	fmt.Printf("%s\n", string(body))
	fmt.Printf("delayed: %v\n", elapsed >= 4*time.Millisecond)

	// Explicitly close the connections
	cpool.Close()

	// Output:
	// d8:intervali1800e5:peers0:e
	// delayed: true
}
