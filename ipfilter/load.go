// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Load parses a blocklist in CIDR text form and returns a filter
// blocking every listed prefix. The expected format is one prefix
// per line, with blank lines and lines starting with "#" ignored:
//
//	# corporate ranges
//	60.0.0.0/30
//	2001:db8::/32
//
// A malformed line causes an error mentioning the line number
// rather than being skipped.
func Load(r io.Reader) (*Filter, error) {
	filter := New()
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := filter.AddCIDR(line, Blocked); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return filter, nil
}
