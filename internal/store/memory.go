package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

// Memory is a threadsafe in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	groups  map[domain.GroupID]*domain.Group
	members map[domain.GroupID]map[domain.MemberID]*domain.Member
	items   map[domain.GroupID]map[domain.ItemID]*domain.Item
	// item ids are unique across groups, as in the items table
	itemIDs map[domain.ItemID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		groups:  make(map[domain.GroupID]*domain.Group),
		members: make(map[domain.GroupID]map[domain.MemberID]*domain.Member),
		items:   make(map[domain.GroupID]map[domain.ItemID]*domain.Item),
		itemIDs: make(map[domain.ItemID]struct{}),
	}
}

func (s *Memory) CreateGroup(_ context.Context, g *domain.Group, creator *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	if creator != nil {
		cp.CreatedBy = creator.ID
	}
	s.groups[g.ID] = &cp
	s.members[g.ID] = make(map[domain.MemberID]*domain.Member)
	s.items[g.ID] = make(map[domain.ItemID]*domain.Item)
	if creator != nil {
		m := *creator
		s.members[g.ID][m.ID] = &m
	}
	return nil
}

func (s *Memory) GetGroup(_ context.Context, id domain.GroupID) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Memory) AddMember(_ context.Context, m *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.members[m.GroupID]
	if !ok {
		return ErrGroupNotFound
	}
	for _, existing := range members {
		if strings.EqualFold(existing.Name, m.Name) {
			return ErrNameTaken
		}
	}
	cp := *m
	members[m.ID] = &cp
	return nil
}

func (s *Memory) GetMember(_ context.Context, groupID domain.GroupID, id domain.MemberID) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.members[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	m, ok := members[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *Memory) ListMembers(_ context.Context, groupID domain.GroupID) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.members[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := make([]domain.Member, 0, len(members))
	for _, m := range members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Memory) CreateItem(_ context.Context, it *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[it.GroupID]
	if !ok {
		return ErrGroupNotFound
	}
	if _, ok := s.members[it.GroupID][it.MemberID]; !ok {
		return ErrMemberNotFound
	}
	if _, ok := s.itemIDs[it.ID]; ok {
		return ErrItemExists
	}
	cp := *it
	items[it.ID] = &cp
	s.itemIDs[it.ID] = struct{}{}
	return nil
}

func (s *Memory) ListItems(_ context.Context, groupID domain.GroupID) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.items[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) SetItemCompleted(_ context.Context, groupID domain.GroupID, id domain.ItemID, completed bool, at time.Time) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	it, ok := items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	it.SetCompleted(completed, at)
	cp := *it
	return &cp, nil
}

func (s *Memory) Close() {}
