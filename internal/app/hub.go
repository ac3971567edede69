package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrHubClosed  = errors.New("hub closed")
	ErrWrongGroup = errors.New("message addressed to another group")
)

type HubConfig struct {
	// CommandBuffer bounds the number of commands waiting for the loop.
	CommandBuffer int
	Policy        Policy
	Now           func() time.Time
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		CommandBuffer: 256,
		Policy:        KickPolicy{},
		Now:           time.Now,
	}
}

// Hub owns room membership. Every mutation and every fan-out is a command
// executed by Run on a single goroutine, in submission order.
type Hub struct {
	cmds     chan command
	registry *Registry
	policy   Policy
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewHub(cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = def.CommandBuffer
	}
	if cfg.Policy == nil {
		cfg.Policy = def.Policy
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cmds:     make(chan command, cfg.CommandBuffer),
		registry: NewRegistry(),
		policy:   cfg.Policy,
		now:      cfg.Now,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled or Shutdown is called.
// On exit every registered connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.once.Do(h.cancel)
	log.Info().Str("module", "app.hub").Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdownConnections()
			return
		case <-h.ctx.Done():
			h.shutdownConnections()
			return
		case cmd := <-h.cmds:
			cmd.apply(h)
		}
	}
}

// Shutdown stops the loop and waits for it to close all connections.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.once.Do(h.cancel)
	select {
	case <-h.done:
		log.Info().Str("module", "app.hub").Msg("hub stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub shutdown: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) submit(ctx context.Context, cmd command) error {
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds conn to the room of groupID and waits for the hub to apply it.
func (h *Hub) Register(ctx context.Context, conn core.SignalConnection, groupID domain.GroupID, memberID domain.MemberID) error {
	reply := make(chan error, 1)
	cmd := registerCmd{
		m: &core.Membership{
			Conn:         conn,
			GroupID:      groupID,
			MemberID:     memberID,
			RegisteredAt: h.now(),
		},
		reply: reply,
	}
	if err := h.submit(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister queues removal of conn. Unknown connections are ignored.
func (h *Hub) Unregister(conn core.SignalConnection) {
	if err := h.submit(context.Background(), unregisterCmd{id: conn.ID(), reason: "unregister"}); err != nil {
		log.Debug().Str("module", "app.hub").Str("conn", string(conn.ID())).Err(err).Msg("unregister after shutdown")
	}
}

// Broadcast queues msg for every connection in groupID except exclude.
// It returns once the command is accepted, not once it is delivered.
func (h *Hub) Broadcast(ctx context.Context, groupID domain.GroupID, msg protocol.Message, exclude core.ConnectionID) error {
	if msg.GroupID() != groupID {
		return fmt.Errorf("broadcast to %s: %w: message is for %s", groupID, ErrWrongGroup, msg.GroupID())
	}
	frame, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return h.submit(ctx, broadcastCmd{
		groupID: groupID,
		typ:     msg.Type(),
		frame:   frame,
		exclude: exclude,
	})
}

// RoomStats answers from the loop, so it observes every command submitted before it.
func (h *Hub) RoomStats(ctx context.Context, groupID domain.GroupID) (core.RoomStats, error) {
	reply := make(chan statsReply, 1)
	if err := h.submit(ctx, statsCmd{groupID: groupID, single: true, reply: reply}); err != nil {
		return core.RoomStats{}, err
	}
	select {
	case r := <-reply:
		return r.single, nil
	case <-h.done:
		return core.RoomStats{}, ErrHubClosed
	case <-ctx.Done():
		return core.RoomStats{}, ctx.Err()
	}
}

func (h *Hub) AllRoomStats(ctx context.Context) (map[domain.GroupID]core.RoomStats, error) {
	reply := make(chan statsReply, 1)
	if err := h.submit(ctx, statsCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.all, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) drop(m *core.Membership, reason string) {
	if h.registry.Unregister(m.Conn.ID()) == nil {
		return
	}
	m.Conn.Close()
	ev := log.Warn().Str("module", "app.hub").Str("conn", string(m.Conn.ID())).Str("group", string(m.GroupID)).Str("reason", reason)
	if a, ok := m.Conn.(core.ActivityReporter); ok {
		ev = ev.Dur("idle", time.Since(a.LastActivity()))
	}
	ev.Msg("connection dropped")
}

func (h *Hub) shutdownConnections() {
	members := h.registry.Drain()
	for _, m := range members {
		m.Conn.Close()
	}
	log.Info().Str("module", "app.hub").Int("connections", len(members)).Msg("closed connections on shutdown")
}
