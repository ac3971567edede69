package protocol

import (
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")

// Error codes carried by "error" frames.
const (
	CodeMalformed      = "malformed_message"
	CodeUnknownType    = "unknown_type"
	CodeNotAllowed     = "type_not_allowed"
	CodeInvalidPayload = "invalid_payload"
	CodeGroupMismatch  = "group_mismatch"
	CodeMemberMismatch = "member_mismatch"
	CodeRateLimited    = "rate_limited"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeInternal       = "internal_error"
)

// Error is the payload of an "error" frame and the error value returned
// by Decode for anything the peer should be told about.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// IsTerminal reports whether a client should stop retrying after receiving code.
func IsTerminal(code string) bool {
	return code == CodeUnauthorized || code == CodeForbidden
}
