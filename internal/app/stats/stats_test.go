package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rooms map[domain.GroupID]core.RoomStats
	err   error
}

func (f fakeSource) RoomStats(_ context.Context, id domain.GroupID) (core.RoomStats, error) {
	return f.rooms[id], f.err
}

func (f fakeSource) AllRoomStats(context.Context) (map[domain.GroupID]core.RoomStats, error) {
	return f.rooms, f.err
}

func TestService(t *testing.T) {
	src := fakeSource{rooms: map[domain.GroupID]core.RoomStats{
		"g1": {Exists: true, ConnectionCount: 2},
		"g2": {Exists: true, ConnectionCount: 1},
		"g3": {},
	}}
	svc := NewService(src)
	ctx := context.Background()

	st, err := svc.GetRoomStats(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, core.RoomStats{Exists: true, ConnectionCount: 2}, st)

	st, err = svc.GetRoomStats(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, st.Exists)

	all, err := svc.GetAllRoomStats(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NotContains(t, all, domain.GroupID("g3"))

	total, err := svc.TotalConnections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestServiceWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(fakeSource{err: boom})

	_, err := svc.GetRoomStats(context.Background(), "g1")
	assert.ErrorIs(t, err, boom)
	_, err = svc.GetAllRoomStats(context.Background())
	assert.ErrorIs(t, err, boom)
}
