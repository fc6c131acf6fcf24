// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netcore provides a TCP/UDP dialer and listener.

This package is designed to facilitate observing TCP and UDP
connection events via the [log/slog] package, and to let callers
inject admission policies, dialers, and resolvers.

# Features

- TCP/UDP dialer compatible with the [*net.Dialer];

- TCP listener compatible with the [*net.ListenConfig];

- domain name resolution with IP-literal short circuit;

- per-endpoint dial admission via the DialFilter hook, used to
enforce IP-range policies on every connection attempt, including
the attempts performed when following HTTP redirects.

# Design Documents

This package is experimental and has no design documents for now.
*/
package netcore
