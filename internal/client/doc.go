// Package client keeps one member's live connection to a group room.
//
// The connection lifecycle is a pure state machine (Transition) driven by a
// Manager, which owns the transport, the retry timer and the outbound queue
// and runs every transition, effect and listener callback on a single
// event-loop goroutine. Dials and reads happen on helper goroutines whose
// results are tagged with a generation number; results from a superseded
// attempt are discarded.
package client
