package store

import (
	"context"
	"errors"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrNameTaken      = errors.New("member name already taken in group")
	ErrItemExists     = errors.New("item already exists")
)

// Store is the persistence API the group service depends on.
type Store interface {
	// CreateGroup stores g together with its creator as the first member.
	CreateGroup(ctx context.Context, g *domain.Group, creator *domain.Member) error
	GetGroup(ctx context.Context, id domain.GroupID) (*domain.Group, error)

	AddMember(ctx context.Context, m *domain.Member) error
	GetMember(ctx context.Context, groupID domain.GroupID, id domain.MemberID) (*domain.Member, error)
	ListMembers(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error)

	CreateItem(ctx context.Context, it *domain.Item) error
	ListItems(ctx context.Context, groupID domain.GroupID) ([]domain.Item, error)
	SetItemCompleted(ctx context.Context, groupID domain.GroupID, id domain.ItemID, completed bool, at time.Time) (*domain.Item, error)

	Close()
}
