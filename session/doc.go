// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package session implements a minimal BitTorrent session focused on
IP-range admission control.

A [*Session] owns an [*ipfilter.Filter] snapshot and consults it at
every point where it would otherwise enter a network relationship:
accepting an inbound peer, dialing an outbound peer, and announcing
to a tracker. Blocked attempts are not errors: they surface as
alerts on the channel returned by [Session.Alerts] and the blocked
peer or tracker simply never appears in session state.

# Features

- inbound gate: accepted connections from blocked addresses are
closed before any protocol byte is read or written;

- outbound gate: blocked candidate peers are dropped from the
pending-connect queue and never dialed;

- tracker gate: announce endpoints are resolved first, then each
resolved address is individually admitted or skipped;

- per-torrent override fixed at add time that exempts a single
torrent from the installed filter;

- filter snapshots installed with [Session.SetIPFilter] take effect
immediately for subsequent checks and never disconnect peers that
are already established;

- one announcer per tracker URL implementing the started, completed,
periodic, and stopped event lifecycle with exponential retry
backoff;

- optional outbound port policy and outbound dial rate limiting.

# Usage

Create a session, install a filter, and add a torrent:

	sess, err := session.New(&session.Config{
		ListenAddrs: []string{"0.0.0.0:6881"},
	})
	// ...
	filter := ipfilter.New()
	filter.AddRule(lo, hi, ipfilter.Blocked)
	sess.SetIPFilter(filter)
	tx, err := sess.AddTorrent(&session.TorrentSpec{
		InfoHash: infoHash,
		Trackers: []string{"http://tracker.example/announce"},
		Peers:    peers,
	})

Consume [Session.Alerts] to observe policy decisions.

# Design Documents

This package is experimental and has no design documents for now.
*/
package session
