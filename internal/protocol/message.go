package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

type Type string

const (
	TypeJoin         Type = "join"
	TypeMemberJoined Type = "member_joined"
	TypeItemAdded    Type = "item_added"
	TypeItemUpdated  Type = "item_updated"
	TypeError        Type = "error"
)

// Known reports whether t is part of the protocol at all.
func (t Type) Known() bool {
	switch t {
	case TypeJoin, TypeMemberJoined, TypeItemAdded, TypeItemUpdated, TypeError:
		return true
	}
	return false
}

// ServerBound reports whether a client may send t.
func (t Type) ServerBound() bool {
	return t == TypeJoin || t == TypeItemAdded || t == TypeItemUpdated
}

// ClientBound reports whether a server may send t.
func (t Type) ClientBound() bool {
	return t == TypeMemberJoined || t == TypeItemAdded || t == TypeItemUpdated || t == TypeError
}

// Envelope is the wire representation.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Message is an immutable event addressed to one group. The payload is
// encoded once at construction so a broadcast never re-marshals per recipient.
type Message struct {
	typ       Type
	groupID   domain.GroupID
	payload   json.RawMessage
	timestamp time.Time
}

// NewMessage marshals data and stamps the message with now.
func NewMessage(t Type, groupID domain.GroupID, data any, now time.Time) (Message, error) {
	if !t.Known() {
		return Message{}, fmt.Errorf("new message: %w: %q", ErrUnknownType, t)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Message{typ: t, groupID: groupID, payload: raw, timestamp: now}, nil
}

func (m Message) Type() Type              { return m.typ }
func (m Message) GroupID() domain.GroupID { return m.groupID }

// Encode renders the wire frame.
func (m Message) Encode() ([]byte, error) {
	env := Envelope{Type: m.typ, Data: m.payload}
	if !m.timestamp.IsZero() {
		env.Timestamp = m.timestamp.UnixMilli()
	}
	return json.Marshal(env)
}

// Join is sent once by a client after every successful connect.
type Join struct {
	GroupID  domain.GroupID  `json:"groupId" validate:"required"`
	MemberID domain.MemberID `json:"memberId" validate:"required"`
}

type ItemInput struct {
	ID          domain.ItemID   `json:"id,omitempty"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description,omitempty" validate:"max=1000"`
	MemberID    domain.MemberID `json:"memberId" validate:"required"`
	Completed   bool            `json:"completed,omitempty"`
}

type ItemAdded struct {
	GroupID domain.GroupID `json:"groupId" validate:"required"`
	Item    ItemInput      `json:"item"`
}

type ItemUpdated struct {
	GroupID   domain.GroupID `json:"groupId" validate:"required"`
	ItemID    domain.ItemID  `json:"itemId" validate:"required"`
	Completed bool           `json:"completed"`
}

// MemberJoined carries the member record of the peer that just joined.
type MemberJoined = domain.Member

// ItemAddedFrom builds the broadcast payload for a persisted item.
func ItemAddedFrom(item *domain.Item) ItemAdded {
	return ItemAdded{
		GroupID: item.GroupID,
		Item: ItemInput{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			MemberID:    item.MemberID,
			Completed:   item.Completed,
		},
	}
}
