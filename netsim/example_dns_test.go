// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rbmk-project/btcore/netsim"
)

// This example shows how a client stack resolves the domain name
// of the well-known tracker using the scenario resolver.
func Example_dnsResolution() {
	// Create scenario
	scenario := netsim.NewScenario()
	defer scenario.Close()

	// Create and attach the DNS resolver stack.
	scenario.Attach(scenario.MustNewDNSStack())

	// Create and attach the tracker stack. We pass a nil handler
	// since we only need its DNS records for this example.
	scenario.Attach(scenario.MustNewTrackerStack(nil))

	// Create and attach the client stack.
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	// Create a context with a watchdog timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Resolve the tracker domain name.
	addrs, err := clientStack.LookupHost(ctx, "tracker.example.com")
	if err != nil {
		log.Fatal(err)
	}

	// Print the resolved addresses.
	for _, addr := range addrs {
		fmt.Println(addr)
	}

	// Output:
	// 10.0.0.2
	// ff::dead:beef
}
