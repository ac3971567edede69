package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Member represents a user's participation in one group.
// No transport or lifecycle logic here.
type Member struct {
	ID       MemberID  `json:"id"`
	GroupID  GroupID   `json:"groupId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(groupID GroupID, name string, now time.Time) (*Member, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name, MaxMemberNameLen); err != nil {
		return nil, err
	}
	return &Member{
		ID:       MemberID(uuid.NewString()),
		GroupID:  groupID,
		Name:     name,
		JoinedAt: now,
	}, nil
}
