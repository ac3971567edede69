package app

import (
	"testing"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RoomLifecycle(t *testing.T) {
	r := NewRegistry()
	a := &core.Membership{Conn: newFakeConn("a", 1), GroupID: "g1"}
	b := &core.Membership{Conn: newFakeConn("b", 1), GroupID: "g1"}

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	_, ok := r.Room("g1")
	assert.True(t, ok)

	assert.Same(t, a, r.Unregister("a"))
	assert.Nil(t, r.Unregister("a"))
	assert.Equal(t, core.RoomStats{Exists: true, ConnectionCount: 1}, r.Stats("g1"))

	r.Unregister("b")
	_, ok = r.Room("g1")
	assert.False(t, ok)
	assert.Empty(t, r.AllStats())
}

func TestRegistry_Drain(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&core.Membership{Conn: newFakeConn("a", 1), GroupID: "g1"}))
	require.NoError(t, r.Register(&core.Membership{Conn: newFakeConn("b", 1), GroupID: "g2"}))

	assert.Len(t, r.Drain(), 2)
	assert.Empty(t, r.AllStats())
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}
