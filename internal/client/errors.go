package client

import (
	"errors"
	"fmt"

	"github.com/NolanKnievel/bucket-list-sub001/internal/protocol"
)

var (
	ErrNoGroup = errors.New("no group: call Connect first")
	ErrClosed  = errors.New("manager closed")
)

type Kind string

const (
	KindConnection Kind = "connection"
	KindProtocol   Kind = "protocol"
	KindCapacity   Kind = "capacity"
	KindAuth       Kind = "auth"
)

const (
	CodeRetriesExhausted = "retries_exhausted"
	CodePolicyViolation  = "policy_violation"
	CodeTransport        = "transport"
	CodeDroppedActions   = "dropped_actions"
)

// Error is what OnError listeners receive.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Terminal errors move the manager to Failed without retrying.
func (e *Error) Terminal() bool {
	return e.Kind == KindAuth || e.Code == CodePolicyViolation
}

func isTerminal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Terminal()
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if err == nil {
		return &Error{Kind: KindConnection, Code: CodeTransport, Message: "connection closed"}
	}
	return &Error{Kind: KindConnection, Code: CodeTransport, Message: "connection lost", Err: err}
}

// fromServer converts an "error" frame.
func fromServer(pe protocol.Error) *Error {
	kind := KindProtocol
	switch {
	case protocol.IsTerminal(pe.Code):
		kind = KindAuth
	case pe.Code == protocol.CodeRateLimited:
		kind = KindCapacity
	}
	return &Error{Kind: kind, Code: pe.Code, Message: pe.Message, Details: pe.Details}
}
