package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/core"
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
	"github.com/NolanKnievel/bucket-list-sub001/internal/store"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("not a member of this group")

// Broadcaster is the part of the hub the group service needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, groupID domain.GroupID, msg protocol.Message, exclude core.ConnectionID) error
}

// Orchestrator persists group mutations and then relays them to the room.
// A failed relay never fails the mutation: the store is the source of truth
// and clients resync over REST.
type Orchestrator struct {
	Store store.Store
	Hub   Broadcaster
	Now   func() time.Time
}

// GroupSnapshot is what a client fetches before opening its websocket.
type GroupSnapshot struct {
	Group   *domain.Group   `json:"group"`
	Members []domain.Member `json:"members"`
	Items   []domain.Item   `json:"items"`
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// CreateGroup creates the group with its creator as first member.
func (o *Orchestrator) CreateGroup(ctx context.Context, name, description string, deadline *time.Time, creatorName string) (*domain.Group, *domain.Member, error) {
	now := o.now()
	g, err := domain.NewGroup(name, description, deadline, now)
	if err != nil {
		return nil, nil, err
	}
	creator, err := domain.NewMember(g.ID, creatorName, now)
	if err != nil {
		return nil, nil, err
	}
	g.CreatedBy = creator.ID
	if err := o.Store.CreateGroup(ctx, g, creator); err != nil {
		return nil, nil, fmt.Errorf("create group: %w", err)
	}
	log.Info().Str("module", "app.orch").Str("group", string(g.ID)).Str("member", string(creator.ID)).Msg("group created")
	return g, creator, nil
}

// groupKey canonicalizes an id that came from a client. An id that is not
// a uuid cannot name a group.
func groupKey(groupID domain.GroupID) (domain.GroupID, error) {
	id, err := domain.ParseGroupID(string(groupID))
	if err != nil {
		return "", store.ErrGroupNotFound
	}
	return id, nil
}

func (o *Orchestrator) Snapshot(ctx context.Context, groupID domain.GroupID) (*GroupSnapshot, error) {
	groupID, err := groupKey(groupID)
	if err != nil {
		return nil, err
	}
	g, err := o.Store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := o.Store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	items, err := o.Store.ListItems(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupSnapshot{Group: g, Members: members, Items: items}, nil
}

// JoinGroup adds a member and emits member_joined to the room.
func (o *Orchestrator) JoinGroup(ctx context.Context, groupID domain.GroupID, name string) (*domain.Member, error) {
	groupID, err := groupKey(groupID)
	if err != nil {
		return nil, err
	}
	m, err := domain.NewMember(groupID, name, o.now())
	if err != nil {
		return nil, err
	}
	if err := o.Store.AddMember(ctx, m); err != nil {
		return nil, fmt.Errorf("join group: %w", err)
	}
	o.relay(ctx, protocol.TypeMemberJoined, groupID, m, "")
	return m, nil
}

// VerifyMember is the upgrade-time auth check. The returned member carries
// the canonical ids the session must register under.
func (o *Orchestrator) VerifyMember(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID) (*domain.Member, error) {
	groupID, err := groupKey(groupID)
	if err != nil {
		return nil, err
	}
	memberID, err = domain.ParseMemberID(string(memberID))
	if err != nil {
		return nil, ErrNotMember
	}
	m, err := o.Store.GetMember(ctx, groupID, memberID)
	if errors.Is(err, store.ErrMemberNotFound) {
		return nil, ErrNotMember
	}
	return m, err
}

// ItemDraft is an item as proposed by a member. ID is optional; clients that
// render optimistically pick it themselves so later toggles line up.
type ItemDraft struct {
	ID          domain.ItemID
	Title       string
	Description string
}

// AddItem stores the item and emits item_added. exclude lets a caller that
// already applied the change optimistically skip its own echo.
func (o *Orchestrator) AddItem(ctx context.Context, groupID domain.GroupID, memberID domain.MemberID, draft ItemDraft, exclude core.ConnectionID) (*domain.Item, error) {
	groupID, err := groupKey(groupID)
	if err != nil {
		return nil, err
	}
	if id, err := domain.ParseMemberID(string(memberID)); err == nil {
		memberID = id
	}
	it, err := domain.NewItem(groupID, memberID, draft.Title, draft.Description, o.now())
	if err != nil {
		return nil, err
	}
	if draft.ID != "" {
		id, err := domain.ParseItemID(string(draft.ID))
		if err != nil {
			return nil, err
		}
		it.ID = id
	}
	if err := o.Store.CreateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	o.relay(ctx, protocol.TypeItemAdded, groupID, protocol.ItemAddedFrom(it), exclude)
	return it, nil
}

// SetItemCompleted toggles completion and emits item_updated.
func (o *Orchestrator) SetItemCompleted(ctx context.Context, groupID domain.GroupID, itemID domain.ItemID, completed bool, exclude core.ConnectionID) (*domain.Item, error) {
	groupID, err := groupKey(groupID)
	if err != nil {
		return nil, err
	}
	itemID, err = domain.ParseItemID(string(itemID))
	if err != nil {
		return nil, store.ErrItemNotFound
	}
	it, err := o.Store.SetItemCompleted(ctx, groupID, itemID, completed, o.now())
	if err != nil {
		return nil, fmt.Errorf("toggle item: %w", err)
	}
	o.relay(ctx, protocol.TypeItemUpdated, groupID, protocol.ItemUpdated{
		GroupID:   groupID,
		ItemID:    it.ID,
		Completed: it.Completed,
	}, exclude)
	return it, nil
}

func (o *Orchestrator) relay(ctx context.Context, t protocol.Type, groupID domain.GroupID, data any, exclude core.ConnectionID) {
	if o.Hub == nil {
		return
	}
	msg, err := protocol.NewMessage(t, groupID, data, o.now())
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("type", string(t)).Msg("build message")
		return
	}
	if err := o.Hub.Broadcast(ctx, groupID, msg, exclude); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("group", string(groupID)).Str("type", string(t)).Msg("relay failed")
	}
}
