package app

import "github.com/NolanKnievel/bucket-list-sub001/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop_frame"
	}
	return "none"
}

// Policy decides what happens to a member whose outbound queue rejected a frame.
type Policy interface {
	OnBackPressure(room *core.Room, member *core.Membership) BackpressureAction
}

// KickPolicy drops slow readers so they never throttle the rest of the room.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Room, *core.Membership) BackpressureAction {
	return KickMember
}
