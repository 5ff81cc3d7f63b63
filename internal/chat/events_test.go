package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEvent_EnvelopeShape(t *testing.T) {
	req := require.New(t)

	raw, err := NewEvent(EventTypingStart, TypingPayload{
		ConversationID: 12,
		UserID:         3,
		Username:       "alice",
	})
	req.NoError(err)

	var evt Event
	req.NoError(json.Unmarshal(raw, &evt))
	req.Equal("typing:start", evt.Event)

	var payload TypingPayload
	req.NoError(json.Unmarshal(evt.Data, &payload))
	req.Equal(12, payload.ConversationID)
	req.Equal("alice", payload.Username)
}

func TestTypingStop_OmitsUsername(t *testing.T) {
	req := require.New(t)

	raw, err := NewEvent(EventTypingStop, TypingPayload{ConversationID: 12, UserID: 3})
	req.NoError(err)
	req.NotContains(string(raw), "username")
}

func TestSendRequest_WireNames(t *testing.T) {
	req := require.New(t)

	var r SendRequest
	err := json.Unmarshal([]byte(`{"conversation_id":5,"content":"hey","message_type":"image"}`), &r)
	req.NoError(err)
	req.Equal(5, r.ConversationID)
	req.Equal("hey", r.Content)
	req.Equal(TypeImage, r.MessageType)
}

func TestNormalizePair(t *testing.T) {
	req := require.New(t)

	low, high := NormalizePair(9, 4)
	req.Equal(4, low)
	req.Equal(9, high)

	low, high = NormalizePair(4, 9)
	req.Equal(4, low)
	req.Equal(9, high)
}
