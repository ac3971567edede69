package core

import (
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is the membership set of one group.
// It is not safe for concurrent use: the hub loop is its only owner, and it
// never closes adapter-owned resources.
type Room struct {
	groupID domain.GroupID
	members map[ConnectionID]*Membership
}

func NewRoom(groupID domain.GroupID) *Room {
	return &Room{
		groupID: groupID,
		members: make(map[ConnectionID]*Membership),
	}
}

func (r *Room) GroupID() domain.GroupID { return r.groupID }

func (r *Room) Len() int { return len(r.members) }

func (r *Room) Has(id ConnectionID) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) Add(m *Membership) {
	r.members[m.Conn.ID()] = m
	log.Debug().Str("module", "core.room").Str("group", string(r.groupID)).Str("conn", string(m.Conn.ID())).Str("member", string(m.MemberID)).Msg("member added")
}

// Remove reports whether id was present.
func (r *Room) Remove(id ConnectionID) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	log.Debug().Str("module", "core.room").Str("group", string(r.groupID)).Str("conn", string(id)).Msg("member removed")
	return true
}

// Broadcast offers f to every member except exclude. Members whose queue
// rejects the frame are returned in Dropped; the room itself is unchanged.
func (r *Room) Broadcast(exclude ConnectionID, f Frame) PublishResult {
	res := PublishResult{}
	for id, m := range r.members {
		if exclude != "" && id == exclude {
			continue
		}
		if err := m.Conn.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("group", string(r.groupID)).Str("exclude", string(exclude)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
