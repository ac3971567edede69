package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     core.ConnectionID
	send   chan core.Frame
	mu     sync.Mutex
	closed bool
}

func newFakeConn(id string, buffer int) *fakeConn {
	return &fakeConn{id: core.ConnectionID(id), send: make(chan core.Frame, buffer)}
}

func (c *fakeConn) ID() core.ConnectionID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// drain returns every frame queued so far, decoded.
func (c *fakeConn) drain(t *testing.T) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case f := <-c.send:
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(f, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(HubConfig{})
	go h.Run(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func itemUpdated(t *testing.T, group domain.GroupID, item string, completed bool) protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(protocol.TypeItemUpdated, group, protocol.ItemUpdated{
		GroupID: group, ItemID: domain.ItemID(item), Completed: completed,
	}, time.Now())
	require.NoError(t, err)
	return msg
}

// waitApplied waits until every previously submitted command has been applied.
func waitApplied(t *testing.T, h *Hub) {
	t.Helper()
	_, err := h.AllRoomStats(context.Background())
	require.NoError(t, err)
}

func TestHub_StatsFollowRegistrations(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	c1 := newFakeConn("c1", 8)
	c2 := newFakeConn("c2", 8)

	require.NoError(t, h.Register(ctx, c1, "g1", "m1"))
	require.NoError(t, h.Register(ctx, c2, "g1", "m2"))

	st, err := h.RoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.RoomStats{Exists: true, ConnectionCount: 2}, st)

	h.Unregister(c1)
	st, err = h.RoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConnectionCount)

	h.Unregister(c2)
	all, err := h.AllRoomStats(ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, domain.GroupID("g1"))

	st, err = h.RoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, st.Exists)
}

func TestHub_RegisterIsBoundToOneGroup(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	c := newFakeConn("c", 8)

	require.NoError(t, h.Register(ctx, c, "g1", "m"))
	require.NoError(t, h.Register(ctx, c, "g1", "m"), "same group is a no-op")
	assert.ErrorIs(t, h.Register(ctx, c, "g2", "m"), ErrAlreadyRegistered)

	all, err := h.AllRoomStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.GroupID]core.RoomStats{"g1": {Exists: true, ConnectionCount: 1}}, all)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	c := newFakeConn("c", 8)
	other := newFakeConn("other", 8)

	require.NoError(t, h.Register(ctx, c, "g1", "m"))
	require.NoError(t, h.Register(ctx, other, "g1", "m2"))
	h.Unregister(c)
	h.Unregister(c)
	h.Unregister(newFakeConn("never-registered", 1))

	st, err := h.RoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConnectionCount)
	assert.True(t, c.isClosed())
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name    string
		exclude core.ConnectionID
		group   domain.GroupID
		want    map[string]int
	}{
		{
			name:    "exclude sender",
			exclude: "a",
			group:   "g1",
			want:    map[string]int{"a": 0, "b": 1, "other": 0},
		},
		{
			name:  "no exclude",
			group: "g1",
			want:  map[string]int{"a": 1, "b": 1, "other": 0},
		},
		{
			name:  "unknown room is a no-op",
			group: "nobody-here",
			want:  map[string]int{"a": 0, "b": 0, "other": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startHub(t)
			ctx := context.Background()
			conns := map[string]*fakeConn{
				"a":     newFakeConn("a", 8),
				"b":     newFakeConn("b", 8),
				"other": newFakeConn("other", 8),
			}
			require.NoError(t, h.Register(ctx, conns["a"], "g1", "ma"))
			require.NoError(t, h.Register(ctx, conns["b"], "g1", "mb"))
			require.NoError(t, h.Register(ctx, conns["other"], "g2", "mo"))

			require.NoError(t, h.Broadcast(ctx, tt.group, itemUpdated(t, tt.group, "i1", true), tt.exclude))
			waitApplied(t, h)

			for name, want := range tt.want {
				got := conns[name].drain(t)
				assert.Len(t, got, want, name)
				for _, env := range got {
					assert.Equal(t, protocol.TypeItemUpdated, env.Type)
				}
			}
		})
	}
}

func TestHub_ExcludedSenderScenario(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a := newFakeConn("a", 8)
	b := newFakeConn("b", 8)
	require.NoError(t, h.Register(ctx, a, "g1", "ma"))
	require.NoError(t, h.Register(ctx, b, "g1", "mb"))

	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i1", true), a.ID()))
	waitApplied(t, h)

	got := b.drain(t)
	require.Len(t, got, 1)
	var data protocol.ItemUpdated
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	assert.True(t, data.Completed)
	assert.Empty(t, a.drain(t))
}

func TestHub_BroadcastSkipsUnregistered(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	gone := newFakeConn("gone", 8)
	stay := newFakeConn("stay", 8)
	require.NoError(t, h.Register(ctx, gone, "g1", "m1"))
	require.NoError(t, h.Register(ctx, stay, "g1", "m2"))

	h.Unregister(gone)
	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i", false), ""))
	waitApplied(t, h)

	assert.Empty(t, gone.drain(t))
	assert.Len(t, stay.drain(t), 1)
}

func TestHub_PreservesOrderPerRoom(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	r1 := newFakeConn("r1", 128)
	r2 := newFakeConn("r2", 128)
	require.NoError(t, h.Register(ctx, r1, "g1", "m1"))
	require.NoError(t, h.Register(ctx, r2, "g1", "m2"))

	for i := 0; i < 100; i++ {
		require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", fmt.Sprintf("item-%03d", i), i%2 == 0), ""))
	}
	waitApplied(t, h)

	for _, c := range []*fakeConn{r1, r2} {
		got := c.drain(t)
		require.Len(t, got, 100)
		for i, env := range got {
			var data protocol.ItemUpdated
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, domain.ItemID(fmt.Sprintf("item-%03d", i)), data.ItemID)
		}
	}
}

func TestHub_DropsSlowReader(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	slow := newFakeConn("slow", 1)
	fast := newFakeConn("fast", 16)
	require.NoError(t, h.Register(ctx, slow, "g1", "m1"))
	require.NoError(t, h.Register(ctx, fast, "g1", "m2"))

	// fill the slow reader's queue
	require.NoError(t, slow.TrySend(core.Frame(`{}`)))

	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i1", true), ""))
	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i2", true), ""))

	st, err := h.RoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConnectionCount)
	assert.True(t, slow.isClosed())
	assert.False(t, fast.isClosed())
	assert.Len(t, fast.drain(t), 2)
}

type idleConn struct {
	*fakeConn
	last time.Time
}

func (c idleConn) LastActivity() time.Time { return c.last }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHub_DropLogsIdleTime(t *testing.T) {
	var out syncBuffer
	prev := log.Logger
	log.Logger = zerolog.New(&out)
	t.Cleanup(func() { log.Logger = prev })

	h := startHub(t)
	ctx := context.Background()
	slow := idleConn{fakeConn: newFakeConn("slow", 1), last: time.Now().Add(-time.Minute)}
	require.NoError(t, h.Register(ctx, slow, "g1", "m1"))
	require.NoError(t, slow.TrySend(core.Frame(`{}`)))

	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i1", true), ""))
	waitApplied(t, h)
	assert.True(t, slow.isClosed())

	var dropped map[string]any
	for _, line := range bytes.Split([]byte(out.String()), []byte("\n")) {
		var entry map[string]any
		if json.Unmarshal(line, &entry) == nil && entry["message"] == "connection dropped" {
			dropped = entry
		}
	}
	require.NotNil(t, dropped)
	assert.Equal(t, "backpressure", dropped["reason"])
	idle, ok := dropped["idle"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, idle, float64(time.Minute/time.Millisecond))
}

func TestHub_BroadcastRejectsWrongGroup(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	c := newFakeConn("c", 4)
	require.NoError(t, h.Register(ctx, c, "g1", "m1"))

	err := h.Broadcast(ctx, "g1", itemUpdated(t, "g2", "i1", true), "")
	assert.ErrorIs(t, err, ErrWrongGroup)
	waitApplied(t, h)
	assert.Empty(t, c.drain(t))
}

func TestHub_ConnectionCountMatchesModel(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	groups := []domain.GroupID{"g1", "g2", "g3"}

	live := map[*fakeConn]domain.GroupID{}
	model := map[domain.GroupID]int{}

	for step := 0; step < 300; step++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			c := newFakeConn(fmt.Sprintf("c%d", step), 4)
			g := groups[rng.Intn(len(groups))]
			require.NoError(t, h.Register(ctx, c, g, "m"))
			live[c] = g
			model[g]++
		} else {
			for c, g := range live {
				h.Unregister(c)
				if rng.Intn(2) == 0 {
					h.Unregister(c)
				}
				delete(live, c)
				model[g]--
				break
			}
		}

		all, err := h.AllRoomStats(ctx)
		require.NoError(t, err)
		for _, g := range groups {
			n := model[g]
			require.GreaterOrEqual(t, n, 0)
			if n == 0 {
				assert.NotContains(t, all, g, "step %d", step)
				continue
			}
			assert.Equal(t, n, all[g].ConnectionCount, "step %d group %s", step, g)
		}
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	h := NewHub(HubConfig{})
	go h.Run(context.Background())
	ctx := context.Background()
	c := newFakeConn("c", 4)
	require.NoError(t, h.Register(ctx, c, "g1", "m"))

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(sctx))

	assert.True(t, c.isClosed())
	assert.ErrorIs(t, h.Register(ctx, newFakeConn("late", 1), "g1", "m"), ErrHubClosed)
	_, err := h.AllRoomStats(ctx)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_RunStopsWithContext(t *testing.T) {
	h := NewHub(HubConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
}

type countingPolicy struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPolicy) OnBackPressure(*core.Room, *core.Membership) BackpressureAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return DropFrame
}

func TestHub_PolicyCanKeepSlowReader(t *testing.T) {
	policy := &countingPolicy{}
	h := NewHub(HubConfig{Policy: policy})
	go h.Run(context.Background())
	defer func() { _ = h.Shutdown(context.Background()) }()

	ctx := context.Background()
	slow := newFakeConn("slow", 1)
	require.NoError(t, h.Register(ctx, slow, "g1", "m"))
	require.NoError(t, slow.TrySend(core.Frame(`{}`)))

	require.NoError(t, h.Broadcast(ctx, "g1", itemUpdated(t, "g1", "i", true), ""))
	st, err := h.RoomStats(ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, 1, st.ConnectionCount)
	assert.False(t, slow.isClosed())
	policy.mu.Lock()
	assert.Equal(t, 1, policy.calls)
	policy.mu.Unlock()
}
