package app

import (
	"errors"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyRegistered = errors.New("connection already registered to another group")

// Registry maps groups to rooms and connections to their membership.
// It has no locking: the hub loop is its single owner.
type Registry struct {
	rooms map[domain.GroupID]*core.Room
	conns map[core.ConnectionID]*core.Membership
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.GroupID]*core.Room),
		conns: make(map[core.ConnectionID]*core.Membership),
	}
}

// Register binds m.Conn to m.GroupID, creating the room on first use.
// A connection's room is fixed: registering it again into the same group
// is a no-op, into another group is ErrAlreadyRegistered.
func (r *Registry) Register(m *core.Membership) error {
	id := m.Conn.ID()
	if existing, ok := r.conns[id]; ok {
		if existing.GroupID == m.GroupID {
			return nil
		}
		return ErrAlreadyRegistered
	}
	room, ok := r.rooms[m.GroupID]
	if !ok {
		room = core.NewRoom(m.GroupID)
		r.rooms[m.GroupID] = room
		log.Info().Str("module", "app.registry").Str("group", string(m.GroupID)).Msg("room created")
	}
	room.Add(m)
	r.conns[id] = m
	return nil
}

// Unregister removes the connection and deletes its room once empty.
// It returns the removed membership, or nil if id was not registered.
func (r *Registry) Unregister(id core.ConnectionID) *core.Membership {
	m, ok := r.conns[id]
	if !ok {
		return nil
	}
	delete(r.conns, id)
	if room, ok := r.rooms[m.GroupID]; ok {
		room.Remove(id)
		if room.Len() == 0 {
			delete(r.rooms, m.GroupID)
			log.Info().Str("module", "app.registry").Str("group", string(m.GroupID)).Msg("room removed")
		}
	}
	return m
}

func (r *Registry) Room(groupID domain.GroupID) (*core.Room, bool) {
	room, ok := r.rooms[groupID]
	return room, ok
}

func (r *Registry) Lookup(id core.ConnectionID) (*core.Membership, bool) {
	m, ok := r.conns[id]
	return m, ok
}

func (r *Registry) Stats(groupID domain.GroupID) core.RoomStats {
	room, ok := r.rooms[groupID]
	if !ok {
		return core.RoomStats{}
	}
	return core.RoomStats{Exists: true, ConnectionCount: room.Len()}
}

func (r *Registry) AllStats() map[domain.GroupID]core.RoomStats {
	out := make(map[domain.GroupID]core.RoomStats, len(r.rooms))
	for id, room := range r.rooms {
		out[id] = core.RoomStats{Exists: true, ConnectionCount: room.Len()}
	}
	return out
}

// Drain unregisters everything and returns what was registered.
func (r *Registry) Drain() []*core.Membership {
	out := make([]*core.Membership, 0, len(r.conns))
	for _, m := range r.conns {
		out = append(out, m)
	}
	r.rooms = make(map[domain.GroupID]*core.Room)
	r.conns = make(map[core.ConnectionID]*core.Membership)
	return out
}
