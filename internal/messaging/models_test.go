// internal/messaging/models_test.go

package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	assert.Equal(t, 4, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(1, 10, 0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)

	p = NewPagination(4, 10, 35)
	assert.False(t, p.HasNext)
	assert.True(t, p.HasPrev)
}

func TestConversationParticipantHelpers(t *testing.T) {
	conv := &Conversation{UserA: 3, UserB: 7}

	assert.True(t, conv.HasParticipant(3))
	assert.True(t, conv.HasParticipant(7))
	assert.False(t, conv.HasParticipant(5))

	assert.Equal(t, int64(7), conv.OtherOf(3))
	assert.Equal(t, int64(3), conv.OtherOf(7))
}

func TestCanonicalPair(t *testing.T) {
	a, b := canonicalPair(9, 4)
	assert.Equal(t, int64(4), a)
	assert.Equal(t, int64(9), b)

	a, b = canonicalPair(4, 9)
	assert.Equal(t, int64(4), a)
	assert.Equal(t, int64(9), b)
}

func TestNormalizePage(t *testing.T) {
	page, size := normalizePage(0, 0, 50)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, size)

	page, size = normalizePage(3, 25, 50)
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, size)

	// Oversized page sizes fall back to the default
	_, size = normalizePage(1, 500, 50)
	assert.Equal(t, 50, size)
}
