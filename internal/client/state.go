package client

import (
	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Machine is the complete connection state. It is a value: Transition
// returns a new one and never mutates its input.
type Machine struct {
	State    State
	GroupID  domain.GroupID
	MemberID domain.MemberID
	// Attempt counts retries scheduled since the last Connected.
	Attempt     int
	MaxAttempts int
	// Generation identifies the current dial; results tagged with an older
	// generation are stale.
	Generation uint64
}

type Event interface{ isEvent() }

type (
	EvConnect struct {
		GroupID  domain.GroupID
		MemberID domain.MemberID
	}
	EvReconnect  struct{}
	EvDisconnect struct{}
	EvOpened     struct{ Gen uint64 }
	// EvClosed reports a failed dial or a lost transport.
	EvClosed struct {
		Gen      uint64
		Err      error
		Terminal bool
	}
	EvTimerFired struct{ Gen uint64 }
)

func (EvConnect) isEvent()    {}
func (EvReconnect) isEvent()  {}
func (EvDisconnect) isEvent() {}
func (EvOpened) isEvent()     {}
func (EvClosed) isEvent()     {}
func (EvTimerFired) isEvent() {}

type Effect interface{ isEffect() }

type (
	Dial struct {
		Gen      uint64
		GroupID  domain.GroupID
		MemberID domain.MemberID
	}
	CloseTransport struct{}
	SendJoin       struct {
		GroupID  domain.GroupID
		MemberID domain.MemberID
	}
	FlushQueue    struct{}
	ScheduleRetry struct {
		Gen     uint64
		Attempt int
	}
	CancelRetry struct{}
	NotifyState struct{ From, To State }
	NotifyError struct{ Err *Error }
)

func (Dial) isEffect()           {}
func (CloseTransport) isEffect() {}
func (SendJoin) isEffect()       {}
func (FlushQueue) isEffect()     {}
func (ScheduleRetry) isEffect()  {}
func (CancelRetry) isEffect()    {}
func (NotifyState) isEffect()    {}
func (NotifyError) isEffect()    {}

// Transition computes the next machine and the effects the runner must
// execute, in order. Stale events yield the input machine and no effects.
func Transition(m Machine, ev Event) (Machine, []Effect) {
	switch e := ev.(type) {
	case EvConnect:
		if (m.State == Connecting || m.State == Connected) && m.GroupID == e.GroupID && m.MemberID == e.MemberID {
			return m, nil
		}
		m.GroupID, m.MemberID = e.GroupID, e.MemberID
		return dial(m)

	case EvReconnect:
		if m.GroupID == "" {
			return m, nil
		}
		return dial(m)

	case EvDisconnect:
		next := m
		next.State = Disconnected
		next.Attempt = 0
		next.Generation++
		effects := []Effect{CancelRetry{}, CloseTransport{}}
		return next, withState(effects, m.State, next.State)

	case EvOpened:
		if m.State != Connecting || e.Gen != m.Generation {
			return m, nil
		}
		next := m
		next.State = Connected
		next.Attempt = 0
		effects := []Effect{
			SendJoin{GroupID: m.GroupID, MemberID: m.MemberID},
			FlushQueue{},
		}
		return next, withState(effects, m.State, next.State)

	case EvClosed:
		if e.Gen != m.Generation || (m.State != Connecting && m.State != Connected) {
			return m, nil
		}
		next := m
		effects := []Effect{CloseTransport{}}
		err := asError(e.Err)
		if e.Terminal {
			next.State = Failed
			effects = append(effects, NotifyError{Err: err})
			return next, withState(effects, m.State, next.State)
		}
		effects = append(effects, NotifyError{Err: err})
		if m.Attempt >= m.MaxAttempts {
			next.State = Failed
			effects = append(effects, NotifyError{Err: &Error{
				Kind:    KindConnection,
				Code:    CodeRetriesExhausted,
				Message: "gave up reconnecting",
				Err:     e.Err,
			}})
			return next, withState(effects, m.State, next.State)
		}
		next.State = Reconnecting
		next.Attempt = m.Attempt + 1
		effects = append(effects, ScheduleRetry{Gen: m.Generation, Attempt: m.Attempt})
		return next, withState(effects, m.State, next.State)

	case EvTimerFired:
		if m.State != Reconnecting || e.Gen != m.Generation {
			return m, nil
		}
		next := m
		next.State = Connecting
		next.Generation++
		effects := []Effect{Dial{Gen: next.Generation, GroupID: m.GroupID, MemberID: m.MemberID}}
		return next, withState(effects, m.State, next.State)
	}
	return m, nil
}

// dial abandons whatever is in flight and starts a fresh connect cycle.
func dial(m Machine) (Machine, []Effect) {
	next := m
	next.State = Connecting
	next.Attempt = 0
	next.Generation++
	effects := []Effect{
		CancelRetry{},
		CloseTransport{},
		Dial{Gen: next.Generation, GroupID: next.GroupID, MemberID: next.MemberID},
	}
	return next, withState(effects, m.State, next.State)
}

func withState(effects []Effect, from, to State) []Effect {
	if from == to {
		return effects
	}
	return append(effects, NotifyState{From: from, To: to})
}
