package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationStateCloneIsIndependent(t *testing.T) {
	state := NewNotificationState()
	state.UnreadCount = 3
	state.Online[7] = true
	state.LastMessageAt[7] = time.Now()

	clone := state.Clone()
	clone.UnreadCount = 99
	clone.Online[7] = false
	clone.Online[8] = true

	assert.Equal(t, 3, state.UnreadCount)
	assert.True(t, state.Online[7])
	assert.NotContains(t, state.Online, int64(8))
}
