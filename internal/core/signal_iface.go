package core

import "time"

// SignalConnection abstracts the messaging transport of one session.
// Owned by the adapter; the hub only calls TrySend and, when it drops the
// session, Close. Both must be safe to call more than once.
type SignalConnection interface {
	ID() ConnectionID
	// TrySend enqueues f without blocking. It returns ErrBackpressure when
	// the outbound queue is full and ErrConnectionClosed after Close.
	TrySend(f Frame) error
	Close()
}

// ActivityReporter is implemented by connections that track when the peer
// was last heard from.
type ActivityReporter interface {
	LastActivity() time.Time
}
