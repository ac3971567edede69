// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxGroupNameLen   = 100
	MaxMemberNameLen  = 50
	MaxItemTitleLen   = 200
	MaxDescriptionLen = 1000
)

var (
	ErrNameEmpty       = errors.New("name empty")
	ErrNameTooLong     = errors.New("name too long")
	ErrTitleEmpty      = errors.New("title empty")
	ErrTitleTooLong    = errors.New("title too long")
	ErrDescTooLong     = errors.New("description too long")
	ErrDeadlineInPast  = errors.New("deadline in the past")
	ErrInvalidGroupID  = errors.New("invalid group id")
	ErrInvalidMemberID = errors.New("invalid member id")
	ErrInvalidItemID   = errors.New("invalid item id")
)

type (
	GroupID  string
	MemberID string
	ItemID   string
)

type Group struct {
	ID          GroupID    `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedBy   MemberID   `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewGroup validates the user supplied fields and stamps a fresh id.
func NewGroup(name, description string, deadline *time.Time, now time.Time) (*Group, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name, MaxGroupNameLen); err != nil {
		return nil, err
	}
	if len(description) > MaxDescriptionLen {
		return nil, ErrDescTooLong
	}
	if deadline != nil && deadline.Before(now) {
		return nil, ErrDeadlineInPast
	}
	return &Group{
		ID:          GroupID(uuid.NewString()),
		Name:        name,
		Description: description,
		Deadline:    deadline,
		CreatedAt:   now,
	}, nil
}

// Parse* accept any spelling uuid.Parse does and return the canonical
// lowercase form, which is what stores and rooms key on.
func ParseGroupID(raw string) (GroupID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidGroupID
	}
	return GroupID(u.String()), nil
}

func ParseMemberID(raw string) (MemberID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidMemberID
	}
	return MemberID(u.String()), nil
}

func ParseItemID(raw string) (ItemID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidItemID
	}
	return ItemID(u.String()), nil
}

func validateName(name string, limit int) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > limit {
		return ErrNameTooLong
	}
	return nil
}
