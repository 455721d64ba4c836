package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-arena/pkg/matchdto"
)

func TestBroadcastReachesOnlyChannelMembers(t *testing.T) {
	cm := NewConnManager()
	a, b, other := newFakeConn("a", 8), newFakeConn("b", 8), newFakeConn("c", 8)
	cm.Register(a)
	cm.Register(b)
	cm.Register(other)
	require.NoError(t, cm.Join("a", "m1"))
	require.NoError(t, cm.Join("b", "m1"))
	require.NoError(t, cm.Join("c", "m2"))

	sent := cm.BroadcastTo(context.Background(), "m1", DrawOfferedEvent("m1", "alice"))

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{matchdto.EventDrawOffered}, a.events())
	assert.Equal(t, []string{matchdto.EventDrawOffered}, b.events())
	assert.Empty(t, other.events())
	assert.Equal(t, "m1", a.last().MatchID)
}

func TestBroadcastDropsForFullConnection(t *testing.T) {
	cm := NewConnManager()
	slow, fast := newFakeConn("slow", 1), newFakeConn("fast", 8)
	cm.Register(slow)
	cm.Register(fast)
	require.NoError(t, cm.Join("slow", "m1"))
	require.NoError(t, cm.Join("fast", "m1"))

	ev := DrawOfferedEvent("m1", "alice")
	assert.Equal(t, 2, cm.BroadcastTo(context.Background(), "m1", ev))
	assert.Equal(t, 1, cm.BroadcastTo(context.Background(), "m1", ev))

	assert.Len(t, slow.events(), 1)
	assert.Len(t, fast.events(), 2)
}

func TestJoinUnknownConnection(t *testing.T) {
	cm := NewConnManager()
	assert.ErrorIs(t, cm.Join("ghost", "m1"), ErrUnknownConn)
}

func TestUnregisterLeavesChannels(t *testing.T) {
	cm := NewConnManager()
	a := newFakeConn("a", 8)
	cm.Register(a)
	require.NoError(t, cm.Join("a", "m1"))
	require.NoError(t, cm.Join("a", "m2"))
	require.Equal(t, 1, cm.Members("m1"))

	cm.Unregister("a")

	assert.Zero(t, cm.Members("m1"))
	assert.Zero(t, cm.Members("m2"))
	assert.Zero(t, cm.BroadcastTo(context.Background(), "m1", DrawOfferedEvent("m1", "x")))
}

func TestLeaveIsIdempotent(t *testing.T) {
	cm := NewConnManager()
	cm.Register(newFakeConn("a", 8))
	require.NoError(t, cm.Join("a", "m1"))
	cm.Leave("a", "m1")
	cm.Leave("a", "m1")
	assert.Zero(t, cm.Members("m1"))
}

func TestBroadcastSkipsCancelledContext(t *testing.T) {
	cm := NewConnManager()
	a := newFakeConn("a", 8)
	cm.Register(a)
	require.NoError(t, cm.Join("a", "m1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, cm.BroadcastTo(ctx, "m1", DrawOfferedEvent("m1", "x")))
	assert.Empty(t, a.events())
}
