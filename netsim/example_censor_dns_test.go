// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/btcore/netsim"
	"github.com/rbmk-project/btcore/netsim/censor"
	netsimdns "github.com/rbmk-project/btcore/netsim/dns"
)

// This example shows how to use [censor.DNSPoisoner] to simulate
// GFW-style DNS poisoning steering a tracker domain name towards
// an unrelated address. The client observes two responses: the
// spoofed one, injected by the censor, arrives first; the
// legitimate one arrives after the extra round trip through the
// actual resolver.
func Example_dnsPoisoning() {
	// Create scenario
	scenario := netsim.NewScenario()
	defer scenario.Close()

	// Create and attach the DNS resolver stack.
	scenario.Attach(scenario.MustNewDNSStack())

	// Create and attach the tracker stack, whose legitimate
	// IPv4 address is 10.0.0.2.
	scenario.Attach(scenario.MustNewTrackerStack(nil))

	// Configure the censor to poison the tracker domain name.
	poisoned := netsimdns.NewDatabase()
	poisoned.AddAddresses(
		[]string{"tracker.example.com"},
		[]string{"60.0.0.1"},
	)
	scenario.Router().AddFilter(censor.NewDNSPoisoner(poisoned))

	// Create and attach the client stack.
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	// Create a context with a watchdog timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Manually send a single A query so that we can observe
	// both the spoofed and the legitimate response.
	conn, err := clientStack.DialContext(ctx, "udp", "10.0.0.53:53")
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	query := new(dns.Msg)
	query.SetQuestion("tracker.example.com.", dns.TypeA)
	dnsconn := &dns.Conn{Conn: conn}
	if err := dnsconn.WriteMsg(query); err != nil {
		log.Fatal(err)
	}

	// Print the IPv4 addresses in each response in arrival order.
	for idx := 0; idx < 2; idx++ {
		resp, err := dnsconn.ReadMsg()
		if err != nil {
			log.Fatal(err)
		}
		for _, rr := range resp.Answer {
			if rr, ok := rr.(*dns.A); ok {
				fmt.Println(rr.A.String())
			}
		}
	}

	// Output:
	// 60.0.0.1
	// 10.0.0.2
}
