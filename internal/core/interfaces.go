package core

import (
	"errors"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

// Frame is an encoded wire message.
type Frame []byte

type ConnectionID string

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Membership is the hub's non-owning view of a registered connection.
type Membership struct {
	Conn         SignalConnection
	GroupID      domain.GroupID
	MemberID     domain.MemberID
	RegisteredAt time.Time
}

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SentTo  int
	Dropped []*Membership
}

// RoomStats is a point-in-time view of a single room.
type RoomStats struct {
	Exists          bool `json:"exists"`
	ConnectionCount int  `json:"connectionCount"`
}
