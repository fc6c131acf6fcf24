// SPDX-License-Identifier: GPL-3.0-or-later

package ipfilter

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("parses prefixes skipping comments and blank lines", func(t *testing.T) {
		blocklist := strings.Join([]string{
			"# corporate ranges",
			"",
			"60.0.0.0/30",
			"  192.0.2.0/24  ",
			"",
			"# lab prefix",
			"2001:db8::/64",
		}, "\n")

		filter, err := Load(strings.NewReader(blocklist))
		require.NoError(t, err)

		assert.True(t, filter.IsBlocked(netip.MustParseAddr("60.0.0.1")))
		assert.False(t, filter.IsBlocked(netip.MustParseAddr("60.0.0.4")))
		assert.True(t, filter.IsBlocked(netip.MustParseAddr("192.0.2.200")))
		assert.True(t, filter.IsBlocked(netip.MustParseAddr("2001:db8::beef")))
		assert.False(t, filter.IsBlocked(netip.MustParseAddr("2001:db8:1::1")))
	})

	t.Run("reports the line number of malformed entries", func(t *testing.T) {
		blocklist := strings.Join([]string{
			"# header",
			"60.0.0.0/30",
			"not-a-prefix",
		}, "\n")

		filter, err := Load(strings.NewReader(blocklist))
		assert.Nil(t, filter)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRange)
		assert.Contains(t, err.Error(), "line 3")
	})

	t.Run("returns an empty filter for empty input", func(t *testing.T) {
		filter, err := Load(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, 0, filter.Len())
	})
}
