package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEncode(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	msg, err := NewMessage(TypeItemUpdated, "g1", ItemUpdated{GroupID: "g1", ItemID: "i1", Completed: true}, now)
	require.NoError(t, err)

	raw, err := msg.Encode()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, TypeItemUpdated, env.Type)
	assert.Equal(t, now.UnixMilli(), env.Timestamp)
	assert.JSONEq(t, `{"groupId":"g1","itemId":"i1","completed":true}`, string(env.Data))
}

func TestNewMessageRejectsUnknownType(t *testing.T) {
	_, err := NewMessage("chat", "g1", struct{}{}, time.Now())
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{name: "valid", raw: `{"type":"join","data":{"groupId":"g","memberId":"m"}}`},
		{name: "not json", raw: `{"type":`, wantCode: CodeMalformed},
		{name: "missing type", raw: `{"data":{}}`, wantCode: CodeMalformed},
		{name: "unknown type", raw: `{"type":"chat","data":{}}`, wantCode: CodeUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.raw))
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantCode, perr.Code)
		})
	}
}

func TestDecodeDataValidates(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"item_added","data":{"groupId":"g","item":{"memberId":"m"}}}`))
	require.NoError(t, err)

	var added ItemAdded
	err = DecodeData(env, &added)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CodeInvalidPayload, perr.Code)
	assert.Contains(t, perr.Details, "ItemAdded.Item.Title")

	env, err = DecodeEnvelope([]byte(`{"type":"item_added","data":{"groupId":"g","item":{"title":"Surf","memberId":"m"}}}`))
	require.NoError(t, err)
	require.NoError(t, DecodeData(env, &added))
	assert.Equal(t, "Surf", added.Item.Title)
}

func TestDecodeDataMissing(t *testing.T) {
	var join Join
	err := DecodeData(Envelope{Type: TypeJoin}, &join)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CodeInvalidPayload, perr.Code)
}

func TestDirections(t *testing.T) {
	assert.True(t, TypeJoin.ServerBound())
	assert.False(t, TypeJoin.ClientBound())
	assert.False(t, TypeMemberJoined.ServerBound())
	assert.True(t, TypeError.ClientBound())
	assert.True(t, TypeItemAdded.ServerBound() && TypeItemAdded.ClientBound())
}
