// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "", EventNone.String())
	assert.Equal(t, "started", EventStarted.String())
	assert.Equal(t, "completed", EventCompleted.String())
	assert.Equal(t, "stopped", EventStopped.String())
}
