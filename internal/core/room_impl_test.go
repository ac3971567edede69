package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	id     ConnectionID
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (s *stubConn) ID() ConnectionID { return s.id }

func (s *stubConn) TrySend(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return ErrBackpressure
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *stubConn) Close() {}

func TestRoomBroadcast(t *testing.T) {
	r := NewRoom("g1")
	a := &stubConn{id: "a"}
	b := &stubConn{id: "b"}
	slow := &stubConn{id: "slow", full: true}
	for _, c := range []*stubConn{a, b, slow} {
		r.Add(&Membership{Conn: c, GroupID: "g1"})
	}

	res := r.Broadcast("a", Frame("hello"))

	assert.Equal(t, 1, res.SentTo)
	if assert.Len(t, res.Dropped, 1) {
		assert.Equal(t, ConnectionID("slow"), res.Dropped[0].Conn.ID())
	}
	assert.Empty(t, a.frames)
	assert.Equal(t, []Frame{Frame("hello")}, b.frames)
	assert.Equal(t, 3, r.Len(), "broadcast never mutates membership")
}

func TestRoomRemove(t *testing.T) {
	r := NewRoom("g1")
	r.Add(&Membership{Conn: &stubConn{id: "a"}})

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("a"))
}
