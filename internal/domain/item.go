package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID          ItemID     `json:"id"`
	GroupID     GroupID    `json:"groupId"`
	MemberID    MemberID   `json:"memberId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func NewItem(groupID GroupID, memberID MemberID, title, description string, now time.Time) (*Item, error) {
	title = strings.TrimSpace(title)
	if len(title) == 0 {
		return nil, ErrTitleEmpty
	}
	if len(title) > MaxItemTitleLen {
		return nil, ErrTitleTooLong
	}
	if len(description) > MaxDescriptionLen {
		return nil, ErrDescTooLong
	}
	return &Item{
		ID:          ItemID(uuid.NewString()),
		GroupID:     groupID,
		MemberID:    memberID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
	}, nil
}

// SetCompleted flips the completion flag and keeps CompletedAt consistent with it.
func (i *Item) SetCompleted(completed bool, now time.Time) {
	i.Completed = completed
	if completed {
		t := now
		i.CompletedAt = &t
		return
	}
	i.CompletedAt = nil
}
