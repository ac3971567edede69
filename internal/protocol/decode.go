package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeEnvelope parses the outer frame. Unknown types are reported as
// *Error with CodeUnknownType so callers can reply verbatim.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, NewError(CodeMalformed, "frame is not a JSON envelope", err.Error())
	}
	if env.Type == "" {
		return Envelope{}, NewError(CodeMalformed, "missing message type", nil)
	}
	if !env.Type.Known() {
		return env, NewError(CodeUnknownType, fmt.Sprintf("unknown message type %q", env.Type), nil)
	}
	return env, nil
}

// DecodeData unmarshals env.Data into dst and validates struct tags.
func DecodeData(env Envelope, dst any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return NewError(CodeInvalidPayload, fmt.Sprintf("%s: missing data", env.Type), nil)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return NewError(CodeInvalidPayload, fmt.Sprintf("%s: bad data", env.Type), err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			return NewError(CodeInvalidPayload, fmt.Sprintf("%s: validation failed", env.Type), fields)
		}
		return NewError(CodeInvalidPayload, fmt.Sprintf("%s: validation failed", env.Type), err.Error())
	}
	return nil
}

// Frame encodes a one-off message without a group binding, e.g. a direct error reply.
func Frame(t Type, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}
