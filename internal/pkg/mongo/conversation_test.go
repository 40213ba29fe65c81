package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPair(t *testing.T) {
	lo, hi := CanonicalPair(42, 7)
	assert.Equal(t, uint64(7), lo)
	assert.Equal(t, uint64(42), hi)

	lo, hi = CanonicalPair(7, 42)
	assert.Equal(t, uint64(7), lo)
	assert.Equal(t, uint64(42), hi)
}

func TestPairKeyOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey(1, 2), PairKey(2, 1))
	assert.Equal(t, "1_2", PairKey(2, 1))
	assert.Equal(t, "9_10", PairKey(10, 9), "必须按数值比较，不能按字符串")
}

func TestConversationPeer(t *testing.T) {
	conv := &Conversation{Participants: []uint64{3, 8}}

	peer, ok := conv.Peer(3)
	assert.True(t, ok)
	assert.Equal(t, uint64(8), peer)

	peer, ok = conv.Peer(8)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), peer)

	_, ok = conv.Peer(99)
	assert.False(t, ok)
}
