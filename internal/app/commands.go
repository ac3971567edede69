package app

import (
	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/rs/zerolog/log"
)

// command is executed by the hub loop and must not block.
type command interface {
	apply(h *Hub)
}

type registerCmd struct {
	m     *core.Membership
	reply chan<- error
}

func (c registerCmd) apply(h *Hub) {
	err := h.registry.Register(c.m)
	if err == nil {
		stats := h.registry.Stats(c.m.GroupID)
		log.Info().Str("module", "app.hub").Str("conn", string(c.m.Conn.ID())).Str("group", string(c.m.GroupID)).Str("member", string(c.m.MemberID)).Int("connections", stats.ConnectionCount).Msg("registered")
	}
	c.reply <- err
}

type unregisterCmd struct {
	id     core.ConnectionID
	reason string
}

func (c unregisterCmd) apply(h *Hub) {
	m := h.registry.Unregister(c.id)
	if m == nil {
		return
	}
	m.Conn.Close()
	log.Info().Str("module", "app.hub").Str("conn", string(c.id)).Str("group", string(m.GroupID)).Str("reason", c.reason).Msg("unregistered")
}

type broadcastCmd struct {
	groupID domain.GroupID
	typ     protocol.Type
	frame   core.Frame
	exclude core.ConnectionID
}

func (c broadcastCmd) apply(h *Hub) {
	room, ok := h.registry.Room(c.groupID)
	if !ok {
		log.Debug().Str("module", "app.hub").Str("group", string(c.groupID)).Str("type", string(c.typ)).Msg("broadcast to empty group")
		return
	}
	res := room.Broadcast(c.exclude, c.frame)
	for _, slow := range res.Dropped {
		action := h.policy.OnBackPressure(room, slow)
		if action == KickMember {
			h.drop(slow, "backpressure")
			continue
		}
		log.Debug().Str("module", "app.hub").Str("group", string(room.GroupID())).Str("conn", string(slow.Conn.ID())).Stringer("action", action).Msg("slow connection kept")
	}
}

type statsReply struct {
	single core.RoomStats
	all    map[domain.GroupID]core.RoomStats
}

type statsCmd struct {
	groupID domain.GroupID
	single  bool
	reply   chan<- statsReply
}

func (c statsCmd) apply(h *Hub) {
	if c.single {
		c.reply <- statsReply{single: h.registry.Stats(c.groupID)}
		return
	}
	c.reply <- statsReply{all: h.registry.AllStats()}
}
