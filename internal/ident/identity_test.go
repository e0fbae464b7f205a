// ABOUTME: Tests for conversation identity classification and record keys.

package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationID_Classification(t *testing.T) {
	assert.True(t, Pending.IsPending())
	assert.False(t, Pending.IsConcrete())

	assert.False(t, ConversationID("").IsPending())
	assert.False(t, ConversationID("").IsConcrete())

	id := ConversationID("conn-42")
	assert.False(t, id.IsPending())
	assert.True(t, id.IsConcrete())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "draft:conn-42", Key("draft", "conn-42"))
	assert.Equal(t, "queue:pending", Key("queue", Pending),
		"the pending sentinel keys records like any other identity")
}
